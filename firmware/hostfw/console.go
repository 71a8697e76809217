package hostfw

import (
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	tty "github.com/mattn/go-tty"
)

// console implements the firmware text input and output devices.
type console struct {
	m *Machine
}

func (c *console) Write(p []byte) (int, error) {
	c.m.mu.Lock()
	c.m.console.Write(p)
	mirror := c.m.cfg.Console
	c.m.mu.Unlock()

	if mirror != nil {
		return mirror.Write(p)
	}
	return len(p), nil
}

func (c *console) Reset() error {
	c.m.record("ConOut.Reset")

	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.resets++
	return nil
}

func (c *console) ReadKeyStroke() (firmware.Key, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	if len(c.m.keys) == 0 {
		return firmware.Key{}, firmware.NotReady
	}

	key := c.m.keys[0]
	c.m.keys = c.m.keys[1:]
	return key, nil
}

// PressKey queues a keystroke on the console input.
func (m *Machine) PressKey(r rune) {
	m.mu.Lock()
	m.keys = append(m.keys, firmware.Key{UnicodeChar: r})
	m.mu.Unlock()
}

// AttachTTY forwards keystrokes typed on the controlling terminal to the
// console input of m. The returned function detaches the terminal and
// restores its original mode.
func AttachTTY(m *Machine) (func(), error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}

	restore, err := t.Raw()
	if err != nil {
		t.Close()
		return nil, err
	}

	go func() {
		for {
			r, err := t.ReadRune()
			if err != nil {
				return
			}
			m.PressKey(r)
		}
	}()

	return func() {
		restore()
		t.Close()
	}, nil
}
