package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerial_New(t *testing.T) {
	d := NewSerial("/dev/ttyACM0", 0)

	assert.Equal(t, DefaultBaudRate, d.baudRate)
	assert.Equal(t, "/dev/ttyACM0", d.Port())
	assert.False(t, d.IsConnected())
	assert.NoError(t, d.Err())
}

func TestSerial_ConnectMissingPort(t *testing.T) {
	d := NewSerial("/dev/gothd-does-not-exist", 115200)

	err := d.Connect()
	assert.ErrorContains(t, err, "failed to open serial port")
	assert.False(t, d.IsConnected())
}

func TestSerial_NotConnected(t *testing.T) {
	d := NewSerial("/dev/ttyACM0", 115200)
	assert.ErrorIs(t, d.RequestRate(1024), ErrNotConnected)
}

func TestSerial_CloseWithoutConnect(t *testing.T) {
	d := NewSerial("/dev/ttyACM0", 115200)
	records := d.Records()

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, ok := <-records
	assert.False(t, ok, "records channel closed exactly once")
	assert.ErrorIs(t, d.Connect(), ErrClosed)
}

func TestSelectPort(t *testing.T) {
	tests := []struct {
		name    string
		ports   []PortInfo
		want    string
		wantErr error
	}{
		{"none", nil, "", ErrNoPorts},
		{"only native", []PortInfo{{Name: "/dev/ttyS0"}}, "/dev/ttyS0", nil},
		{
			"usb preferred",
			[]PortInfo{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyUSB0", IsUSB: true, VID: "1234"}},
			"/dev/ttyUSB0", nil,
		},
		{
			"known vendor preferred",
			[]PortInfo{
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1234"},
				{Name: "/dev/ttyACM0", IsUSB: true, VID: "2E8A"},
			},
			"/dev/ttyACM0", nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectPort(tt.ports)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
