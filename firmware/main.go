//go:build tinygo

//go:generate tinygo build -target=pico -o gothd.uf2 .
//go:generate tinygo flash -target=pico

package main

import (
	"context"
	"time"

	"machine"

	"github.com/itohio/gothd/pkg/acquire"
	"github.com/itohio/gothd/pkg/device"
	"github.com/itohio/gothd/pkg/ratectl"
	"github.com/itohio/gothd/pkg/record"
	"github.com/itohio/gothd/pkg/sample"
)

// serialPort adapts the USB CDC serial to the device link.
type serialPort struct {
	machine.Serialer
}

// Read returns the bytes already received without blocking.
func (p serialPort) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) && p.Buffered() > 0 {
		c, err := p.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
	}
	return n, nil
}

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.InitADC()
	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc := machine.ADC{Pin: PIN_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	machine.Serial.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})
	port := serialPort{machine.Serial}

	src := &sample.ADCSource{ADC: adc, VRef: ADC_VREF}
	sched := acquire.NewScheduler(src, acquire.WithMidpoint(INPUT_MIDPOINT))
	rates := ratectl.NewController(SAMPLE_RATE_HZ, RATE_CEILING_HZ, nil)

	led := false
	inst := device.New(port, sched, rates, device.Config{
		WindowLength: WINDOW_LENGTH,
		Deadline:     ACQUIRE_DEADLINE,
		CyclePause:   CYCLE_PAUSE,
		Midpoint:     INPUT_MIDPOINT,
		FullScale:    ADC_VREF,
		ChunkSize:    CHUNK_SIZE,
		ChunkPause:   CHUNK_PAUSE,
	}, device.WithObserver(func(record.Record) {
		led = !led
		PIN_LED.Set(led)
	}))

	// The link only fails if the host side stops reading; start over after a pause.
	for {
		_ = inst.Run(context.Background())
		time.Sleep(CYCLE_PAUSE)
	}
}
