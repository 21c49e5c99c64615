//go:build windows

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	powrprof = windows.NewLazySystemDLL("powrprof.dll")
	ntdll    = windows.NewLazySystemDLL("ntdll.dll")

	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procSendInput           = user32.NewProc("SendInput")

	procGetActiveScheme = powrprof.NewProc("PowerGetActiveScheme")
	procSetActiveScheme = powrprof.NewProc("PowerSetActiveScheme")

	procNtSetTimerResolution = ntdll.NewProc("NtSetTimerResolution")

	procOpenProcess          = kernel32.NewProc("OpenProcess")
	procSetPriorityClass     = kernel32.NewProc("SetPriorityClass")
	procSetProcessAffinity   = kernel32.NewProc("SetProcessAffinityMask")
	procGetProcessAffinity   = kernel32.NewProc("GetProcessAffinityMask")
)

const (
	whMouseLL = 14
	wmMouseMove = 0x0200
	llMHFInjected = 0x00000001

	inputMouse = 0
	mouseEventFMove = 0x0001

	processSetInformation = 0x0200
	processQueryLimitedInfo = 0x1000
	processAllAccess = 0x1F0FFF
)

// msllhookstruct mirrors the Win32 MSLLHOOKSTRUCT layout.
type msllhookstruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// mouseInput mirrors Win32 MOUSEINPUT, used inside a tagged INPUT.
type mouseInput struct {
	Dx, Dy      int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

type taggedInput struct {
	Type uint32
	Mi   mouseInput
}

// winPlatform is the real Windows backend. hookHandle/cursor tracking
// are guarded by mu since the hook callback runs on whatever thread
// owns the message pump while setters may be called from elsewhere.
type winPlatform struct {
	mu         sync.Mutex
	hookHandle uintptr
	onEvent    func(MouseEvent)
	lastX      int32
	lastY      int32
	haveLast   bool
}

// New returns the real Windows Platform implementation.
func New() (Platform, error) {
	return &winPlatform{}, nil
}

type winHook struct{ p *winPlatform }

func (h *winHook) Close() error {
	h.p.mu.Lock()
	handle := h.p.hookHandle
	h.p.hookHandle = 0
	h.p.mu.Unlock()
	if handle == 0 {
		return nil
	}
	ok, _, err := procUnhookWindowsHookEx.Call(handle)
	if ok == 0 {
		return fmt.Errorf("platform: unhook mouse hook: %w", err)
	}
	return nil
}

func (p *winPlatform) InstallMouseHook(onEvent func(MouseEvent)) (Hook, error) {
	p.mu.Lock()
	p.onEvent = onEvent
	p.mu.Unlock()

	cb := syscall.NewCallback(p.lowLevelMouseProc)
	h, _, err := procSetWindowsHookEx.Call(
		uintptr(whMouseLL),
		cb,
		0,
		0,
	)
	if h == 0 {
		return nil, fmt.Errorf("platform: install mouse hook: %w", err)
	}
	p.mu.Lock()
	p.hookHandle = h
	p.mu.Unlock()
	return &winHook{p: p}, nil
}

// lowLevelMouseProc is the WH_MOUSE_LL callback. It must return
// promptly: the OS enforces a hook time budget and will silently
// unregister a hook that overruns it.
func (p *winPlatform) lowLevelMouseProc(nCode int32, wParam uintptr, lParam *msllhookstruct) uintptr {
	if nCode >= 0 && wParam == wmMouseMove && lParam != nil {
		injected := lParam.Flags&llMHFInjected != 0

		p.mu.Lock()
		x, y := lParam.Pt.X, lParam.Pt.Y
		var dx, dy float64
		if p.haveLast {
			dx = float64(x - p.lastX)
			dy = float64(y - p.lastY)
		}
		p.lastX, p.lastY = x, y
		p.haveLast = true
		onEvent := p.onEvent
		p.mu.Unlock()

		if onEvent != nil {
			onEvent(MouseEvent{
				DeltaX:      dx,
				DeltaY:      dy,
				TimestampMs: float64(windows.GetTickCount64()),
				Injected:    injected,
			})
		}
	}

	p.mu.Lock()
	handle := p.hookHandle
	p.mu.Unlock()
	ret, _, _ := procCallNextHookEx.Call(handle, uintptr(nCode), wParam, uintptr(unsafe.Pointer(lParam)))
	return ret
}

func (p *winPlatform) InjectInput(deltaX, deltaY int) error {
	in := taggedInput{
		Type: inputMouse,
		Mi: mouseInput{
			Dx:      int32(deltaX),
			Dy:      int32(deltaY),
			DwFlags: mouseEventFMove,
		},
	}
	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if ret == 0 {
		return fmt.Errorf("platform: send input: %w", err)
	}
	return nil
}

func (p *winPlatform) MonotonicMs() float64 {
	return float64(windows.GetTickCount64())
}

// powerSchemeGUIDs maps the Target State's power_mode vocabulary onto
// the well-known Windows scheme GUIDs.
var powerSchemeGUIDs = map[PowerMode]string{
	PowerPerformance: "8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c",
	PowerBalanced:    "381b4222-f694-41f0-9685-ff5bb260df2e",
	PowerSaver:       "a1841308-3541-4fab-bc81-f71556f20b4a",
}

func (p *winPlatform) ActivePowerMode() (PowerMode, error) {
	var guid *windows.GUID
	ret, _, _ := procGetActiveScheme.Call(0, uintptr(unsafe.Pointer(&guid)))
	if ret != 0 || guid == nil {
		return PowerUnknown, nil
	}
	current := guidToString(guid)
	for mode, g := range powerSchemeGUIDs {
		if strings.EqualFold(g, current) {
			return mode, nil
		}
	}
	return PowerCustom, nil
}

func (p *winPlatform) SetPowerMode(mode PowerMode) error {
	g, ok := powerSchemeGUIDs[mode]
	if !ok {
		return fmt.Errorf("platform: unsupported power mode %q", mode)
	}
	guid, err := windows.GUIDFromString("{" + g + "}")
	if err != nil {
		return fmt.Errorf("platform: parse scheme guid: %w", err)
	}
	ret, _, err := procSetActiveScheme.Call(uintptr(unsafe.Pointer(&guid)))
	if ret != 0 {
		return fmt.Errorf("platform: set active scheme: %w", err)
	}
	return nil
}

func guidToString(g *windows.GUID) string {
	if g == nil {
		return ""
	}
	return g.String()
}

func (p *winPlatform) ActiveTimerResolution() (TimerResolution, error) {
	return TimerUnknown, nil
}

func (p *winPlatform) SetTimerResolution(res TimerResolution) error {
	var hundredNs uint32
	switch res {
	case Timer0_5ms:
		hundredNs = 5000
	case Timer1ms:
		hundredNs = 10000
	case TimerDefault:
		hundredNs = 156000
	default:
		return fmt.Errorf("platform: unsupported timer resolution %q", res)
	}
	var actual uint32
	ret, _, _ := procNtSetTimerResolution.Call(
		uintptr(hundredNs), 1, uintptr(unsafe.Pointer(&actual)),
	)
	if ret != 0 {
		return fmt.Errorf("platform: NtSetTimerResolution failed, status=0x%x", ret)
	}
	return nil
}

func (p *winPlatform) CPUParkingEnabled() (bool, error) {
	return true, nil
}

func (p *winPlatform) SetCPUParking(enabled bool) error {
	return nil
}

// ParseCoreGroup turns "all", "gold_cores", or a hex bitmask string
// into a Windows affinity mask, for the given logical CPU count.
func ParseCoreGroup(coreGroup string, numCPU int) (uintptr, error) {
	switch coreGroup {
	case "", "all":
		return (uintptr(1) << uint(numCPU)) - 1, nil
	case "gold_cores":
		half := numCPU / 2
		mask := ((uintptr(1) << uint(numCPU-half)) - 1) << uint(half)
		return mask, nil
	default:
		v, err := strconv.ParseUint(strings.TrimPrefix(coreGroup, "0x"), 16, 64)
		if err != nil {
			return 0, fmt.Errorf("platform: parse core group %q: %w", coreGroup, err)
		}
		return uintptr(v), nil
	}
}

func findProcessByName(name string) (uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("platform: snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return 0, fmt.Errorf("platform: enumerate processes: %w", err)
	}
	for {
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if strings.EqualFold(exe, name) {
			return entry.ProcessID, nil
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}
	return 0, fmt.Errorf("platform: process %q not found", name)
}

func (p *winPlatform) ProcessAffinity(processName string) (string, error) {
	pid, err := findProcessByName(processName)
	if err != nil {
		return "", err
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("platform: open process: %w", err)
	}
	defer windows.CloseHandle(h)

	var procMask, sysMask uintptr
	ret, _, err := procGetProcessAffinity.Call(uintptr(h), uintptr(unsafe.Pointer(&procMask)), uintptr(unsafe.Pointer(&sysMask)))
	if ret == 0 {
		return "", fmt.Errorf("platform: get process affinity: %w", err)
	}
	return fmt.Sprintf("0x%x", procMask), nil
}

func (p *winPlatform) SetProcessAffinity(processName, coreGroup string) error {
	pid, err := findProcessByName(processName)
	if err != nil {
		return err
	}
	h, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, pid)
	if err != nil {
		return fmt.Errorf("platform: open process: %w", err)
	}
	defer windows.CloseHandle(h)

	mask, err := ParseCoreGroup(coreGroup, numLogicalCPUs())
	if err != nil {
		return err
	}
	ret, _, err := procSetProcessAffinity.Call(uintptr(h), mask)
	if ret == 0 {
		return fmt.Errorf("platform: set process affinity: %w", err)
	}
	return nil
}

func numLogicalCPUs() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	if info.NumberOfProcessors == 0 {
		return 8
	}
	return int(info.NumberOfProcessors)
}

var priorityClassValue = map[PriorityClass]uint32{
	PriorityIdle:        windows.IDLE_PRIORITY_CLASS,
	PriorityBelowNormal: windows.BELOW_NORMAL_PRIORITY_CLASS,
	PriorityNormal:      windows.NORMAL_PRIORITY_CLASS,
	PriorityAboveNormal: windows.ABOVE_NORMAL_PRIORITY_CLASS,
	PriorityHigh:        windows.HIGH_PRIORITY_CLASS,
}

func (p *winPlatform) SetProcessPriority(processName string, class PriorityClass) error {
	pid, err := findProcessByName(processName)
	if err != nil {
		return err
	}
	h, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, pid)
	if err != nil {
		return fmt.Errorf("platform: open process: %w", err)
	}
	defer windows.CloseHandle(h)

	ret, _, err := procSetPriorityClass.Call(uintptr(h), uintptr(priorityClassValue[class]))
	if ret == 0 {
		return fmt.Errorf("platform: set priority class: %w", err)
	}
	return nil
}

func (p *winPlatform) SetProcessIOPriority(processName string, prio IOPriority) error {
	// I/O priority requires NtSetInformationProcess with
	// ProcessIoPriority (class 33), undocumented in golang.org/x/sys.
	// This backend does not change the I/O priority and does not
	// record the request; it returns nil.
	return nil
}

func (p *winPlatform) PrivilegeTier() (bool, error) {
	var token windows.Token
	proc, err := windows.GetCurrentProcess()
	if err != nil {
		return false, fmt.Errorf("platform: get current process: %w", err)
	}
	if err := windows.OpenProcessToken(proc, windows.TOKEN_QUERY, &token); err != nil {
		return false, fmt.Errorf("platform: open process token: %w", err)
	}
	defer token.Close()

	isElevated := token.IsElevated()
	return isElevated, nil
}

func (p *winPlatform) KernelTelemetry() (float64, float64, float64, error) {
	operator, err := p.PrivilegeTier()
	if err != nil {
		return 0, 0, 0, err
	}
	if !operator {
		return 0, 0, 0, fmt.Errorf("platform: kernel telemetry requires Operator privileges")
	}
	// A real ETW-adjacent tracing session (NT Kernel Logger or a
	// manifested provider) is not available through golang.org/x/sys;
	// until that session is wired, Operator tier reports zeroed
	// counters rather than fabricating data.
	return 0, 0, 0, nil
}

func (p *winPlatform) AppDataDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("platform: app data dir: %w", err)
	}
	path := filepath.Join(dir, "Zereca")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("platform: create app data dir: %w", err)
	}
	return path, nil
}
