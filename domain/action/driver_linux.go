package action

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
)

const (
	keysymShiftL = 0xffe1
	keysymReturn = 0xff0d
	keysymTab    = 0xff09

	buttonPrimary = 1
)

// x11Driver injects input through the XTEST extension.
type x11Driver struct {
	conn   *xgb.Conn
	root   xproto.Window
	width  int
	height int

	mu         sync.Mutex
	minKeycode xproto.Keycode
	perKeycode int
	keysyms    []xproto.Keysym
	shift      xproto.Keycode
	scratch    xproto.Keycode
}

func newDriver() (driver, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("action: connect to X server: %w", err)
	}
	if err := xtest.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("action: XTEST extension: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)
	d := &x11Driver{
		conn:       conn,
		root:       screen.Root,
		width:      int(screen.WidthInPixels),
		height:     int(screen.HeightInPixels),
		minKeycode: setup.MinKeycode,
	}
	if err := d.loadKeymap(setup.MinKeycode, setup.MaxKeycode); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *x11Driver) loadKeymap(minK, maxK xproto.Keycode) error {
	count := byte(maxK - minK + 1)
	reply, err := xproto.GetKeyboardMapping(d.conn, minK, count).Reply()
	if err != nil {
		return fmt.Errorf("action: keyboard mapping: %w", err)
	}
	d.perKeycode = int(reply.KeysymsPerKeycode)
	d.keysyms = reply.Keysyms
	if kc, _, ok := d.lookup(keysymShiftL); ok {
		d.shift = kc
	}
	// Pick an unmapped keycode, scanning from the top, for runes the layout lacks.
	for i := len(d.keysyms)/d.perKeycode - 1; i >= 0; i-- {
		empty := true
		for _, ks := range d.keysyms[i*d.perKeycode : (i+1)*d.perKeycode] {
			if ks != 0 {
				empty = false
				break
			}
		}
		if empty {
			d.scratch = minK + xproto.Keycode(i)
			break
		}
	}
	return nil
}

// lookup returns the keycode producing ks and whether Shift is needed.
func (d *x11Driver) lookup(ks xproto.Keysym) (xproto.Keycode, bool, bool) {
	for i := 0; i+d.perKeycode <= len(d.keysyms); i += d.perKeycode {
		group := d.keysyms[i : i+d.perKeycode]
		for col := 0; col < min(2, len(group)); col++ {
			if group[col] == ks {
				return d.minKeycode + xproto.Keycode(i/d.perKeycode), col == 1, true
			}
		}
	}
	return 0, false, false
}

func (d *x11Driver) screenSize() (int, int, error) {
	return d.width, d.height, nil
}

func (d *x11Driver) cursorPos() (int, int, error) {
	reply, err := xproto.QueryPointer(d.conn, d.root).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("action: query pointer: %w", err)
	}
	return int(reply.RootX), int(reply.RootY), nil
}

func (d *x11Driver) moveCursor(x, y int) error {
	err := xtest.FakeInputChecked(d.conn, xproto.MotionNotify, 0, 0, d.root, int16(x), int16(y), 0).Check()
	if err != nil {
		return fmt.Errorf("action: move to (%d,%d): %w", x, y, err)
	}
	return nil
}

func (d *x11Driver) button(down bool) error {
	typ := byte(xproto.ButtonRelease)
	if down {
		typ = xproto.ButtonPress
	}
	if err := xtest.FakeInputChecked(d.conn, typ, buttonPrimary, 0, d.root, 0, 0, 0).Check(); err != nil {
		return fmt.Errorf("action: button: %w", err)
	}
	return nil
}

func (d *x11Driver) key(kc xproto.Keycode, down bool) error {
	typ := byte(xproto.KeyRelease)
	if down {
		typ = xproto.KeyPress
	}
	return xtest.FakeInputChecked(d.conn, typ, byte(kc), 0, d.root, 0, 0, 0).Check()
}

func keysymFor(r rune) xproto.Keysym {
	switch {
	case r == '\n' || r == '\r':
		return keysymReturn
	case r == '\t':
		return keysymTab
	case (r >= 0x20 && r <= 0x7e) || (r >= 0xa0 && r <= 0xff):
		return xproto.Keysym(r)
	default:
		return xproto.Keysym(0x01000000 | r)
	}
}

func (d *x11Driver) typeRune(r rune) error {
	if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
		return fmt.Errorf("%w: %U", ErrUnsupportedRune, r)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ks := keysymFor(r)
	kc, shifted, ok := d.lookup(ks)
	if !ok {
		var err error
		if kc, err = d.remap(ks); err != nil {
			return err
		}
	}
	if shifted {
		if d.shift == 0 {
			return fmt.Errorf("%w: %q needs Shift", ErrUnsupportedRune, r)
		}
		if err := d.key(d.shift, true); err != nil {
			return fmt.Errorf("action: shift: %w", err)
		}
		defer func() { _ = d.key(d.shift, false) }()
	}
	if err := d.key(kc, true); err != nil {
		return fmt.Errorf("action: key %q: %w", r, err)
	}
	if err := d.key(kc, false); err != nil {
		return fmt.Errorf("action: key %q: %w", r, err)
	}
	return nil
}

// remap binds ks to the scratch keycode.
func (d *x11Driver) remap(ks xproto.Keysym) (xproto.Keycode, error) {
	if d.scratch == 0 {
		return 0, fmt.Errorf("%w: keysym %#x not in layout", ErrUnsupportedRune, ks)
	}
	syms := make([]xproto.Keysym, d.perKeycode)
	for i := range syms {
		syms[i] = ks
	}
	err := xproto.ChangeKeyboardMappingChecked(d.conn, 1, d.scratch, byte(d.perKeycode), syms).Check()
	if err != nil {
		return 0, fmt.Errorf("action: remap keysym %#x: %w", ks, err)
	}
	off := int(d.scratch-d.minKeycode) * d.perKeycode
	copy(d.keysyms[off:off+d.perKeycode], syms)
	// Round trip so the server applies the mapping before the key is pressed.
	if _, err := xproto.GetInputFocus(d.conn).Reply(); err != nil {
		return 0, fmt.Errorf("action: sync after remap: %w", err)
	}
	return d.scratch, nil
}

func (d *x11Driver) close() error {
	d.conn.Close()
	return nil
}
