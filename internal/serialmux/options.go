package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions are the line settings of the tracker's serial link. Zero
// fields mean 8N1 at DefaultBaudRate.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// DefaultBaudRate is the tracker's factory line speed.
const DefaultBaudRate = 115200

var parities = map[string]serial.Parity{
	"N": serial.NoParity, "NONE": serial.NoParity,
	"E": serial.EvenParity, "EVEN": serial.EvenParity,
	"O": serial.OddParity, "ODD": serial.OddParity,
}

var parityLetters = map[serial.Parity]string{
	serial.NoParity:   "N",
	serial.EvenParity: "E",
	serial.OddParity:  "O",
}

// SerialMode validates o and converts it for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}

	switch o.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}

	if p := strings.ToUpper(strings.TrimSpace(o.Parity)); p != "" {
		parity, ok := parities[p]
		if !ok {
			return nil, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
		}
		mode.Parity = parity
	}
	return mode, nil
}

// String gives the line settings in the usual short form, e.g.
// "115200 8N1", or "invalid".
func (o PortOptions) String() string {
	mode, err := o.SerialMode()
	if err != nil {
		return "invalid"
	}
	stop := 1
	if mode.StopBits == serial.TwoStopBits {
		stop = 2
	}
	return fmt.Sprintf("%d %d%s%d", mode.BaudRate, mode.DataBits, parityLetters[mode.Parity], stop)
}
