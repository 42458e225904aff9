// Command costard runs the widget runtime against a real ILI9341 SPI
// panel. Pin names follow the usual Raspberry Pi wiring; override them
// with flags for other boards.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	costar "github.com/ab0oo/costar-sub000"
)

func main() {
	var (
		layout  = flag.String("layout", "/var/lib/costar/layout.json", "layout document")
		dslDir  = flag.String("dsl", "/var/lib/costar/dsl", "widget DSL directory")
		iconDir = flag.String("icons", "/var/cache/costar/icons", "icon download cache")
		dbPath  = flag.String("db", "/var/lib/costar/costar.db", "key/value store")
		spiDev  = flag.String("spi", "", "SPI port (empty = first available)")
		dcPin   = flag.String("dc", "GPIO25", "data/command pin")
		rstPin  = flag.String("rst", "GPIO24", "reset pin")
	)
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatalf("host init: %v", err)
	}

	port, err := spireg.Open(*spiDev)
	if err != nil {
		log.Fatalf("spi open: %v", err)
	}
	defer port.Close()

	conn, err := port.Connect(40*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		log.Fatalf("spi connect: %v", err)
	}

	dc := gpioreg.ByName(*dcPin)
	rst := gpioreg.ByName(*rstPin)
	if dc == nil || rst == nil {
		log.Fatalf("gpio pins %s/%s not found", *dcPin, *rstPin)
	}

	panel, err := newPanel(conn, dc, rst)
	if err != nil {
		log.Fatalf("panel init: %v", err)
	}

	app, err := costar.NewApp(costar.Config{
		LayoutPath: *layout,
		DSLDir:     *dslDir,
		IconDir:    *iconDir,
		DBPath:     *dbPath,
	}, panel.MemFramebuffer)
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer app.Close()
	app.OnFrame(func() {
		if err := panel.Flush(); err != nil {
			log.Printf("flush: %v", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	if err := app.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("run: %v", err)
	}
}

// panel is a memory framebuffer flushed to the ILI9341 over SPI.
type panel struct {
	*costar.MemFramebuffer
	conn spi.Conn
	dc   gpio.PinOut
	line []byte
}

// ILI9341 commands used for window writes.
const (
	cmdSleepOut   = 0x11
	cmdDisplayOn  = 0x29
	cmdColAddrSet = 0x2A
	cmdPageAddr   = 0x2B
	cmdMemWrite   = 0x2C
	cmdMADCTL     = 0x36
	cmdPixelFmt   = 0x3A
)

func newPanel(conn spi.Conn, dc, rst gpio.PinOut) (*panel, error) {
	p := &panel{
		MemFramebuffer: costar.NewMemFramebuffer(costar.ScreenW, costar.ScreenH),
		conn:           conn,
		dc:             dc,
		line:           make([]byte, costar.ScreenW*2),
	}

	if err := rst.Out(gpio.Low); err != nil {
		return nil, err
	}
	if err := rst.Out(gpio.High); err != nil {
		return nil, err
	}

	init := []struct {
		cmd  byte
		data []byte
	}{
		{cmdSleepOut, nil},
		{cmdMADCTL, []byte{0xE8}},   // landscape, BGR
		{cmdPixelFmt, []byte{0x55}}, // 16bpp
		{cmdDisplayOn, nil},
	}
	for _, step := range init {
		if err := p.command(step.cmd, step.data...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *panel) command(cmd byte, data ...byte) error {
	if err := p.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := p.conn.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := p.dc.Out(gpio.High); err != nil {
		return err
	}
	return p.conn.Tx(data, nil)
}

// addrWindowEnd splits the inclusive end coordinate of a CASET/PASET
// window into its two wire bytes.
func addrWindowEnd(size int) (hi, lo byte) {
	end := size - 1
	return byte(end >> 8), byte(end & 0xFF)
}

// Flush pushes the whole framebuffer through the panel's RAM window,
// one row per SPI transaction to stay under the driver's buffer limit.
func (p *panel) Flush() error {
	colHi, colLo := addrWindowEnd(costar.ScreenW)
	if err := p.command(cmdColAddrSet, 0, 0, colHi, colLo); err != nil {
		return err
	}
	pageHi, pageLo := addrWindowEnd(costar.ScreenH)
	if err := p.command(cmdPageAddr, 0, 0, pageHi, pageLo); err != nil {
		return err
	}
	if err := p.command(cmdMemWrite); err != nil {
		return err
	}
	if err := p.dc.Out(gpio.High); err != nil {
		return err
	}

	pix := p.Pixels()
	for row := 0; row < costar.ScreenH; row++ {
		base := row * costar.ScreenW
		for col := 0; col < costar.ScreenW; col++ {
			c := pix[base+col]
			p.line[2*col] = byte(c >> 8)
			p.line[2*col+1] = byte(c)
		}
		if err := p.conn.Tx(p.line, nil); err != nil {
			return err
		}
	}
	return nil
}
