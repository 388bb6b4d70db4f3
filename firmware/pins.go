//go:build tinygo

package main

import (
	"time"

	"machine"
)

const (
	// Sampling configuration
	SAMPLE_RATE_HZ   = 1024 // Power-on sampling rate
	RATE_CEILING_HZ  = 10000
	WINDOW_LENGTH    = 1024 // Samples per acquisition
	ACQUIRE_DEADLINE = 5 * time.Second
	CYCLE_PAUSE      = 2 * time.Second

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits, reads are normalized to 16 bits
	ADC_VREF         = 3.3  // Volts
	INPUT_MIDPOINT   = 1.65 // DC bias of the conditioned input, VCC/2

	// Input pin, GP26 on the Pico
	PIN_ADC = machine.ADC0

	// Status LED toggles on every transmitted frame
	PIN_LED = machine.LED

	// Link configuration
	// One frame at the default window is 2092 bytes. At 115200 baud (11,520 bytes/sec)
	// that is ~0.18 s on a UART bridge; USB CDC ignores the baud rate.
	// Frames are written in 512 byte chunks with 10 ms pauses so the host drains its buffer.
	CHUNK_SIZE     = 512
	CHUNK_PAUSE    = 10 * time.Millisecond
	UART_BAUD_RATE = 115200
)
