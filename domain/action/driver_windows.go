package action

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	smCXScreen = 0
	smCYScreen = 1

	mouseEventLeftDown = 0x0002
	mouseEventLeftUp   = 0x0004

	inputKeyboard     = 1
	keyEventKeyUp     = 0x0002
	keyEventUnicode   = 0x0004
	vkReturn          = 0x0D
	vkTab             = 0x09
	inputSizeExpected = 40
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procSetCursorPos = user32.NewProc("SetCursorPos")
	procGetCursorPos = user32.NewProc("GetCursorPos")
	procMouseEvent   = user32.NewProc("mouse_event")
	procSendInput    = user32.NewProc("SendInput")
	procGetMetrics   = user32.NewProc("GetSystemMetrics")
	procSetDPIAware  = user32.NewProc("SetProcessDPIAware")
)

type point struct{ X, Y int32 }

// keyboardInput mirrors INPUT with a KEYBDINPUT payload on 64-bit Windows.
type keyboardInput struct {
	typ   uint32
	_     uint32
	vk    uint16
	scan  uint16
	flags uint32
	time  uint32
	_     uint32
	extra uintptr
	_     [8]byte
}

type win32Driver struct{}

func newDriver() (driver, error) {
	if err := user32.Load(); err != nil {
		return nil, err
	}
	// Physical pixels, so coordinates agree with captures on scaled displays.
	if procSetDPIAware.Find() == nil {
		_, _, _ = procSetDPIAware.Call()
	}
	return win32Driver{}, nil
}

func (win32Driver) screenSize() (int, int, error) {
	w, _, _ := procGetMetrics.Call(smCXScreen)
	h, _, _ := procGetMetrics.Call(smCYScreen)
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("action: GetSystemMetrics reported %dx%d", w, h)
	}
	return int(w), int(h), nil
}

func (win32Driver) cursorPos() (int, int, error) {
	var p point
	if r, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p))); r == 0 {
		return 0, 0, fmt.Errorf("action: GetCursorPos: %w", err)
	}
	return int(p.X), int(p.Y), nil
}

func (win32Driver) moveCursor(x, y int) error {
	if r, _, err := procSetCursorPos.Call(uintptr(x), uintptr(y)); r == 0 {
		return fmt.Errorf("action: SetCursorPos(%d,%d): %w", x, y, err)
	}
	return nil
}

func (win32Driver) button(down bool) error {
	flag := uintptr(mouseEventLeftUp)
	if down {
		flag = mouseEventLeftDown
	}
	// mouse_event has no failure return.
	_, _, _ = procMouseEvent.Call(flag, 0, 0, 0, 0)
	return nil
}

func (win32Driver) typeRune(r rune) error {
	var inputs []keyboardInput
	switch r {
	case '\n', '\r':
		inputs = append(inputs,
			keyboardInput{typ: inputKeyboard, vk: vkReturn},
			keyboardInput{typ: inputKeyboard, vk: vkReturn, flags: keyEventKeyUp})
	case '\t':
		inputs = append(inputs,
			keyboardInput{typ: inputKeyboard, vk: vkTab},
			keyboardInput{typ: inputKeyboard, vk: vkTab, flags: keyEventKeyUp})
	default:
		if !utf8.ValidRune(r) {
			return fmt.Errorf("%w: %U", ErrUnsupportedRune, r)
		}
		units := utf16.Encode([]rune{r})
		for _, u := range units {
			inputs = append(inputs, keyboardInput{typ: inputKeyboard, scan: u, flags: keyEventUnicode})
		}
		for _, u := range units {
			inputs = append(inputs, keyboardInput{typ: inputKeyboard, scan: u, flags: keyEventUnicode | keyEventKeyUp})
		}
	}
	size := unsafe.Sizeof(inputs[0])
	if size != inputSizeExpected {
		return fmt.Errorf("action: unsupported INPUT layout (%d bytes)", size)
	}
	n, _, err := procSendInput.Call(uintptr(len(inputs)), uintptr(unsafe.Pointer(&inputs[0])), size)
	if int(n) != len(inputs) {
		return fmt.Errorf("action: SendInput %q: %w", r, err)
	}
	return nil
}

func (win32Driver) close() error { return nil }
