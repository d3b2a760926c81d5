package main

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const KEYBOARD_DEBOUNCE_TIME = 300 * time.Millisecond

type FontConfig struct {
	TTF      []byte
	FontSize float64
}

var (
	fonts = map[string]FontConfig{
		"title": {TTF: gobold.TTF, FontSize: 22},
		"text":  {TTF: gobold.TTF, FontSize: 16},
		"arrow": {TTF: gobold.TTF, FontSize: 26},
		"small": {TTF: goregular.TTF, FontSize: 12},
	}

	fontCacheMu sync.Mutex
	fontCache   = make(map[string]font.Face)
)

// getFontFace loads the font based on our mapping.
func getFontFace(fontName string) (font.Face, int, error) {
	fontCacheMu.Lock()
	defer fontCacheMu.Unlock()

	face, ok := fontCache[fontName]
	if !ok {
		cfg, ok := fonts[fontName]
		if !ok {
			return nil, 0, fmt.Errorf("font %s not found in mapping", fontName)
		}
		ttfFont, err := opentype.Parse(cfg.TTF)
		if err != nil {
			return nil, 0, fmt.Errorf("error parsing font: %w", err)
		}
		face, err = opentype.NewFace(ttfFont, &opentype.FaceOptions{
			Size:    cfg.FontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, 0, err
		}
		fontCache[fontName] = face
	}

	metrics := face.Metrics()
	fontHeight := metrics.Ascent.Round() + metrics.Descent.Round()
	return face, fontHeight, nil
}

// monitorModeKey waits for presses of any key on the named input device and
// calls toggle for each one. It returns when the device cannot be opened or
// stop is closed.
func monitorModeKey(deviceName string, toggle func(), stop <-chan struct{}) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		log.Printf("ListDevicePaths error: %v", err)
		return
	}

	var devPath string
	for _, ip := range paths {
		if ip.Name == deviceName {
			devPath = ip.Path
			break
		}
	}
	if devPath == "" {
		log.Printf("mode key: no input device named %q", deviceName)
		return
	}

	keyboard, err := evdev.Open(devPath)
	if err != nil {
		log.Printf("Open(%s) error: %v", devPath, err)
		return
	}
	release := releaseOnce(keyboard)
	defer release()

	if err := keyboard.Grab(); err != nil {
		log.Printf("warning: failed to grab device: %v", err)
	}

	// Closing the device unblocks ReadOne.
	go func() {
		<-stop
		release()
	}()

	name, _ := keyboard.Name()
	log.Printf("mode key: using input device %s (%s)", devPath, name)

	var lastKeyPress time.Time
	for {
		ev, err := keyboard.ReadOne()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			log.Printf("read error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if ev.Type != evdev.EV_KEY || ev.Value != 1 {
			continue
		}
		now := time.Now()
		if now.Sub(lastKeyPress) < KEYBOARD_DEBOUNCE_TIME {
			continue
		}
		lastKeyPress = now
		log.Printf("mode key %d pressed", ev.Code)
		toggle()
	}
}

type grabbedDevice interface {
	Ungrab() error
	Close() error
}

// releaseOnce returns a func that ungrabs and then closes dev. Only the first
// call does anything.
func releaseOnce(dev grabbedDevice) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			dev.Ungrab()
			dev.Close()
		})
	}
}

// localIPv4 returns the first non loopback IPv4 address of the host.
func localIPv4() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no IPv4 address found")
}

// networkHint is the two line footer of the standby screen.
func networkHint(listen string) []string {
	ip, err := localIPv4()
	if err != nil {
		return []string{"Photo Album", "Waiting for network"}
	}
	_, port, err := net.SplitHostPort(listen)
	if err != nil || port == "" || port == "80" {
		return []string{"Photo Album", "Connect to: " + ip}
	}
	return []string{"Photo Album", "Connect to: " + ip + ":" + port}
}
