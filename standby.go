package main

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/llgcode/draw2d/draw2dimg"
	"golang.org/x/image/font"

	"github.com/photonicat/photo_album_display/rgb565"
)

const (
	MOVING_DURATION       = 5 * time.Second
	TAKING_PHOTO_DURATION = 500 * time.Millisecond
	SHAKE_DURATION        = 300 * time.Millisecond

	TRAIL_LENGTH     = 10
	CAMERA_SIZE      = 50
	BOOT_CAMERA_SIZE = 40
	ANIM_TIME_STEP   = 0.05
	LENS_STEP        = 0.1
	PATH_RADIUS      = 40

	BOOT_TITLE          = "Photo Album"
	BOOT_CHAR_DELAY     = 100 * time.Millisecond
	BOOT_PROGRESS_DELAY = 20 * time.Millisecond
	BOOT_READY_DELAY    = time.Second
	LOADING_BAR_WIDTH   = 160
	LOADING_BAR_HEIGHT  = 20
)

var (
	TRAIL_CYAN    = rgb565.Pack(0, 255, 255)
	STAR_GOLD     = color.RGBA{255, 215, 0, 255}
	HEART_RED     = color.RGBA{255, 0, 0, 255}
	SHADOW_GREY   = color.RGBA{30, 30, 30, 255}
	bootMessages  = []string{"Initializing", "Network Setup", "Getting Ready", "Welcome"}
	standbyArrows = []string{"^", "^ ^", "^ ^ ^"}
)

type cameraState int

const (
	stateMoving cameraState = iota
	stateTakingPhoto
	stateShake
)

func (s cameraState) String() string {
	switch s {
	case stateMoving:
		return "MOVING"
	case stateTakingPhoto:
		return "TAKING_PHOTO"
	case stateShake:
		return "SHAKE"
	default:
		return "UNKNOWN"
	}
}

type trailPoint struct {
	x, y  float64
	color uint16
}

// standbyAnimation is the screen shown while no photo is stored: a camera
// flying a figure eight that takes a picture every few seconds.
type standbyAnimation struct {
	width, height int
	frame         *image.RGBA
	hint          []string

	state        cameraState
	stateStart   time.Time
	animTime     float64
	lensRotation float64
	cameraX      float64
	cameraY      float64
	trail        [TRAIL_LENGTH]trailPoint
	frameCount   int

	textFace, arrowFace, smallFace font.Face
	star, heart                    *image.RGBA
}

func newStandbyAnimation(width, height int, hint []string, now time.Time) (*standbyAnimation, error) {
	s := &standbyAnimation{
		width:      width,
		height:     height,
		frame:      image.NewRGBA(image.Rect(0, 0, width, height)),
		hint:       hint,
		stateStart: now,
	}
	var err error
	if s.textFace, _, err = getFontFace("text"); err != nil {
		return nil, err
	}
	if s.arrowFace, _, err = getFontFace("arrow"); err != nil {
		return nil, err
	}
	if s.smallFace, _, err = getFontFace("small"); err != nil {
		return nil, err
	}
	if s.star, err = rasterizeSVG("star", starSVG(12, STAR_GOLD), 12, 12); err != nil {
		return nil, err
	}
	if s.heart, err = rasterizeSVG("heart", heartSVG(HEART_RED), 10, 10); err != nil {
		return nil, err
	}
	return s, nil
}

// advance moves the animation one frame forward.
func (s *standbyAnimation) advance(now time.Time) {
	s.animTime += ANIM_TIME_STEP

	elapsed := now.Sub(s.stateStart)
	switch s.state {
	case stateMoving:
		if elapsed > MOVING_DURATION {
			s.state, s.stateStart = stateTakingPhoto, now
		}
	case stateTakingPhoto:
		if elapsed > TAKING_PHOTO_DURATION {
			s.state, s.stateStart = stateShake, now
		}
	case stateShake:
		if elapsed > SHAKE_DURATION {
			s.state, s.stateStart = stateMoving, now
		}
	}

	t := s.animTime
	s.cameraX = float64(s.width)/2 + PATH_RADIUS*math.Sin(t)
	s.cameraY = float64(s.height)/2 - 30 + PATH_RADIUS*math.Sin(2*t)/2
	s.lensRotation += LENS_STEP

	copy(s.trail[1:], s.trail[:TRAIL_LENGTH-1])
	s.trail[0] = trailPoint{s.cameraX, s.cameraY, TRAIL_CYAN}
}

func (s *standbyAnimation) breath() uint8 {
	return uint8((math.Sin(s.animTime) + 1) * 127)
}

// Frame advances and renders the next frame. The returned image is reused.
func (s *standbyAnimation) Frame(now time.Time) *image.RGBA {
	s.advance(now)
	s.render(now)
	s.frameCount++
	return s.frame
}

func (s *standbyAnimation) render(now time.Time) {
	clearFrame(s.frame, s.width, s.height)
	gc := draw2dimg.NewGraphicContext(s.frame)

	for i := 0; i < TRAIL_LENGTH-1; i++ {
		p := s.trail[i]
		if p.color == 0 {
			continue
		}
		c := rgb565.Unpack(rgb565.Scale(p.color, TRAIL_LENGTH-i, TRAIL_LENGTH))
		s.frame.SetRGBA(int(p.x), int(p.y), c)
	}

	b := s.breath()
	scale := 1.0
	switch s.state {
	case stateTakingPhoto:
		scale = 1.2
	case stateShake:
		scale = 1.0 + math.Sin(float64(now.UnixMilli())*0.1)*0.1
	}
	drawCamera(gc, s.cameraX, s.cameraY, CAMERA_SIZE*scale, color.RGBA{b, b, b, 255},
		s.lensRotation, s.state == stateTakingPhoto)

	t := s.animTime
	drawIconCentered(s.frame, s.star, s.cameraX+40*math.Cos(2*t), s.cameraY-50+40*math.Sin(2*t))
	if int(t*10)%20 < 10 {
		fillCircle(gc, s.cameraX, s.cameraY+60, 3, PCAT_WHITE)
	}
	drawIconCentered(s.frame, s.heart, s.cameraX-40*math.Cos(3*t), s.cameraY+60+40*math.Sin(3*t))

	textLevel := uint8(math.Min(float64(b)+128, 255))
	message := "Waiting for Upload"
	if s.state == stateTakingPhoto {
		message = "*CLICK*"
	}
	cx := s.width / 2
	drawTextMiddle(s.frame, message, cx, s.height/2+70, s.textFace, color.RGBA{0, textLevel, textLevel, 255})
	drawTextMiddle(s.frame, standbyArrows[s.frameCount%len(standbyArrows)], cx, s.height/2+110, s.arrowFace, PCAT_GREEN)

	for i, line := range s.hint {
		y := s.height - 20*(len(s.hint)-i)
		drawTextMiddle(s.frame, line, cx, y, s.smallFace, PCAT_WHITE)
	}
}

// drawCamera draws the cartoon camera centered on (x, y).
func drawCamera(gc *draw2dimg.GraphicContext, x, y, size float64, body color.RGBA, lensRotation float64, flash bool) {
	stripe := color.RGBA{uint8(float64(body.R) * 0.7), uint8(float64(body.G) * 0.7), uint8(float64(body.B) * 0.7), 255}

	fillRoundedRect(gc, x-size/2+2, y-size/3+2, size, size*2/3, size/6, SHADOW_GREY)
	fillRoundedRect(gc, x-size/2, y-size/3, size, size*2/3, size/6, body)
	fillRoundedRect(gc, x-size/2, y-size/6, size, size/12, size/24, stripe)

	// viewfinder
	fillRoundedRect(gc, x+size/4, y-size/2, size/4, size/6, size/16, PCAT_BLACK)
	fillRoundedRect(gc, x+size/4+1, y-size/2+1, size/4-2, size/6-2, size/16, body)

	lensX := x + math.Cos(lensRotation)*size/8
	lensY := y + math.Sin(lensRotation)*size/8
	fillCircle(gc, lensX, lensY, size/3, PCAT_BLACK)
	fillCircle(gc, lensX, lensY, size/3-2, body)
	fillCircle(gc, lensX, lensY, size/4, PCAT_BLACK)
	fillCircle(gc, lensX, lensY, size/4-2, body)
	fillCircle(gc, lensX, lensY, size/6, PCAT_BLACK)

	fillCircle(gc, x-size/3, y-size/4, size/12, PCAT_BLACK)
	fillCircle(gc, x-size/3, y-size/4, size/12-1, stripe)

	if flash {
		for r := size / 3; r > 0; r -= 2 {
			level := uint8(math.Min(r*8, 255))
			strokeCircle(gc, x+size/3, y-size/2, r, 1, color.RGBA{level, level, level, 255})
		}
		fillRoundedRect(gc, x+size/3-size/12, y-size/2-size/12, size/6, size/6, size/24, PCAT_WHITE)

		fillCircle(gc, x-size/6, y-size/6, size/20, PCAT_WHITE)
		fillCircle(gc, x+size/6, y-size/6, size/20, PCAT_WHITE)
		fillCircle(gc, x-size/6, y-size/6, size/30, PCAT_BLACK)
		fillCircle(gc, x+size/6, y-size/6, size/30, PCAT_BLACK)
	} else {
		fillRoundedRect(gc, x+size/3-size/12, y-size/2-size/12, size/6, size/6, size/24, stripe)

		strokeLine(gc, x-size/6-size/30, y-size/6, x-size/6+size/30, y-size/6, 1, PCAT_BLACK)
		strokeLine(gc, x+size/6-size/30, y-size/6, x+size/6+size/30, y-size/6, 1, PCAT_BLACK)
	}

	// ears
	fillCircle(gc, x-size/2+size/12, y-size/3, size/20, PCAT_WHITE)
	fillCircle(gc, x+size/2-size/12, y-size/3, size/20, PCAT_WHITE)
}

// waitingFrame is the plain screen drawn instead of the animation when
// memory is low.
func waitingFrame(width, height int) (*image.RGBA, error) {
	face, _, err := getFontFace("text")
	if err != nil {
		return nil, err
	}
	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	clearFrame(frame, width, height)
	drawTextMiddle(frame, "Waiting for Upload...", width/2, height/2, face, PCAT_WHITE)
	return frame, nil
}

// bootMessage is the status line under the progress bar at percent.
func bootMessage(percent int) string {
	i := percent / 25
	if i >= len(bootMessages) {
		i = len(bootMessages) - 1
	}
	return bootMessages[i] + strings.Repeat(".", percent%3+1)
}

// showBootAnimation plays the start-up sequence on screen.
func showBootAnimation(screen *Screen, rng *rand.Rand, sleep func(time.Duration)) error {
	width, height := screen.Size()
	titleFace, _, err := getFontFace("title")
	if err != nil {
		return err
	}
	textFace, _, err := getFontFace("text")
	if err != nil {
		return err
	}
	smallFace, _, err := getFontFace("small")
	if err != nil {
		return err
	}

	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	clearFrame(frame, width, height)
	gc := draw2dimg.NewGraphicContext(frame)
	drawCamera(gc, float64(width)/2, float64(height)/3, BOOT_CAMERA_SIZE, PCAT_WHITE, 0, false)
	screen.DrawFrame(frame)

	const charSpacing = 16
	titleX := (width-len(BOOT_TITLE)*charSpacing)/2 + charSpacing/2
	titleY := height/3 + 50
	for i, r := range BOOT_TITLE {
		c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
		drawTextMiddle(frame, string(r), titleX+i*charSpacing, titleY, titleFace, c)
		screen.DrawFrame(frame)
		sleep(BOOT_CHAR_DELAY)
	}

	barX := (width - LOADING_BAR_WIDTH) / 2
	barY := height * 2 / 3
	for i := 0; i <= 100; i++ {
		drawRect(frame, 0, barY-30, width, LOADING_BAR_HEIGHT+60, PCAT_BLACK)

		fill := color.RGBA{uint8(i * 255 / 100), uint8(i * 128 / 100), 255, 255}
		bar, err := rasterizeSVG("",
			progressBarSVG(LOADING_BAR_WIDTH, LOADING_BAR_HEIGHT, i, fill), LOADING_BAR_WIDTH, LOADING_BAR_HEIGHT)
		if err != nil {
			return err
		}
		copyImageToImageAt(frame, bar, barX, barY)

		drawTextMiddle(frame, fmt.Sprintf("%d%%", i), width/2, barY-16, smallFace, PCAT_WHITE)
		drawTextMiddle(frame, bootMessage(i), width/2, barY+LOADING_BAR_HEIGHT+20, smallFace, color.RGBA{0, 255, 255, 255})
		screen.DrawFrame(frame)
		sleep(BOOT_PROGRESS_DELAY)
	}

	clearFrame(frame, width, height)
	drawTextMiddle(frame, "Ready!", width/2, height/2, textFace, PCAT_GREEN)
	screen.DrawFrame(frame)
	sleep(BOOT_READY_DELAY)

	screen.Fill(PCAT_BLACK)
	return nil
}
