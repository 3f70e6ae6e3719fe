package renderfarm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"cvstudio/internal/render"
)

type rodBackend struct {
	launch  *launcher.Launcher
	browser *rod.Browser
}

func newRodBackend(cfg Config) (backend, error) {
	launch := launcher.New().
		Headless(true).
		NoSandbox(true)

	if cfg.BrowserBin != "" {
		launch = launch.Bin(cfg.BrowserBin)
	} else if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &rodBackend{launch: launch, browser: browser}, nil
}

func (b *rodBackend) alive() bool {
	_, err := proto.BrowserGetVersion{}.Call(b.browser)
	return err == nil
}

func (b *rodBackend) shutdown() {
	_ = b.browser.Close()
	b.launch.Cleanup()
}

func (b *rodBackend) newSession(ctx context.Context) (pageSession, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &rodSession{page: page}, nil
}

type rodSession struct {
	page *rod.Page
}

func (s *rodSession) close() {
	_ = s.page.Close()
}

// loadDocument 装载自包含 HTML 并等待加载完成。
// 文档除 webfont 外没有外部引用，load 即近似 idle。
func (s *rodSession) loadDocument(ctx context.Context, html string) (*rod.Page, error) {
	page := s.page.Context(ctx)

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	// 等待字体就绪，避免回退字体度量导致预览与 PDF 排版不一致。
	_, _ = page.Timeout(5 * time.Second).Eval(`() => {
	  if (document && document.fonts && document.fonts.ready) {
	    return Promise.race([
	      document.fonts.ready.then(() => true),
	      new Promise((resolve) => setTimeout(() => resolve(true), 3000))
	    ]);
	  }
	  return true;
	}`)

	return page, nil
}

func (s *rodSession) printPDF(ctx context.Context, html string) ([]byte, error) {
	page, err := s.loadDocument(ctx, html)
	if err != nil {
		return nil, err
	}

	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, fmt.Errorf("set emulated media to print: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        float64Ptr(8.27),
		PaperHeight:       float64Ptr(11.69),
		MarginTop:         float64Ptr(0),
		MarginBottom:      float64Ptr(0),
		MarginLeft:        float64Ptr(0),
		MarginRight:       float64Ptr(0),
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func (s *rodSession) screenshot(ctx context.Context, html string) ([]byte, error) {
	page, err := s.loadDocument(ctx, html)
	if err != nil {
		return nil, err
	}

	const quality = 80

	element, err := page.Timeout(5 * time.Second).Element("#" + render.DocumentRootID)
	if err == nil {
		if data, shotErr := element.Screenshot(proto.PageCaptureScreenshotFormatJpeg, quality); shotErr == nil {
			return data, nil
		}
	}

	req := &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: intPtr(quality),
	}
	data, err := page.Screenshot(true, req)
	if err != nil {
		return nil, fmt.Errorf("page screenshot: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}

func intPtr(value int) *int {
	return &value
}
