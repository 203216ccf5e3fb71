// Package pdf renders a parsed plan as a branded, paginated PDF.
package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"github.com/pageza/platecoach/backend/internal/planparser"
	"github.com/pageza/platecoach/backend/internal/textutil"
)

const (
	documentTitle = "Personalised Nutrition Plan"
	dateLayout    = "January 2, 2006"

	margin     = 18.0
	lineHeight = 5.5

	utf8Family = "DejaVu"
	coreFamily = "Helvetica"
)

// Branding holds tenant colours as hex strings such as "#1F7A5C".
type Branding struct {
	Primary   string
	Secondary string
	Accent    string
}

// DefaultBranding is used when a tenant has not configured colours.
func DefaultBranding() Branding {
	return Branding{Primary: "#1F7A5C", Secondary: "#0F3D2E", Accent: "#F59E0B"}
}

// Document is everything needed to render one plan.
type Document struct {
	Plan         *planparser.ParsedPlan
	ClientName   string
	AuthorName   string
	BusinessName string
	Brand        Branding
	CreatedAt    time.Time
}

// Renderer produces PDF documents. It is safe for concurrent use.
type Renderer struct {
	fontDir  string
	compress bool
	logger   *zap.Logger

	fontsOnce sync.Once
	regular   []byte
	bold      []byte
}

// Option configures a Renderer
type Option func(*Renderer)

// WithFontDir loads DejaVuSans.ttf and DejaVuSans-Bold.ttf from dir for full Unicode output.
func WithFontDir(dir string) Option {
	return func(r *Renderer) { r.fontDir = dir }
}

// WithCompression toggles stream compression. Enabled by default.
func WithCompression(on bool) Option {
	return func(r *Renderer) { r.compress = on }
}

// WithLogger sets the logger used for font loading problems.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// NewRenderer creates a renderer
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{compress: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// loadFonts reads font files once per renderer lifetime.
func (r *Renderer) loadFonts() {
	r.fontsOnce.Do(func() {
		if r.fontDir == "" {
			return
		}
		regular, err := os.ReadFile(filepath.Join(r.fontDir, "DejaVuSans.ttf"))
		if err != nil {
			r.logger.Warn("falling back to core PDF fonts", zap.Error(err))
			return
		}
		bold, err := os.ReadFile(filepath.Join(r.fontDir, "DejaVuSans-Bold.ttf"))
		if err != nil {
			r.logger.Warn("falling back to core PDF fonts", zap.Error(err))
			return
		}
		r.regular, r.bold = regular, bold
	})
}

// Render returns the encoded PDF for doc.
func (r *Renderer) Render(doc Document) ([]byte, error) {
	pdf, err := r.build(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) build(doc Document) (*fpdf.Fpdf, error) {
	if doc.Plan == nil {
		return nil, fmt.Errorf("document has no plan")
	}
	r.loadFonts()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(margin, margin+8, margin)
	pdf.SetAutoPageBreak(true, margin+4)
	pdf.AliasNbPages("")
	pdf.SetCreationDate(doc.CreatedAt)
	pdf.SetTitle(documentTitle, true)
	pdf.SetAuthor(doc.AuthorName, true)
	pdf.SetCreator(doc.BusinessName, true)

	l := &layout{pdf: pdf, doc: doc, brand: resolveBrand(doc.Brand)}
	if r.regular != nil {
		pdf.AddUTF8FontFromBytes(utf8Family, "", r.regular)
		pdf.AddUTF8FontFromBytes(utf8Family, "B", r.bold)
		l.family = utf8Family
		l.tr = func(s string) string { return s }
	} else {
		l.family = coreFamily
		l.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.SetHeaderFunc(l.header)
	pdf.SetFooterFunc(l.footer)

	l.cover()
	for _, section := range doc.Plan.Sections {
		l.section(section)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return pdf, nil
}

type rgb struct{ r, g, b int }

type palette struct {
	primary, secondary, accent rgb
}

func resolveBrand(b Branding) palette {
	def := DefaultBranding()
	pick := func(v, fallback string) rgb {
		if c, ok := parseHex(v); ok {
			return c
		}
		c, _ := parseHex(fallback)
		return c
	}
	return palette{
		primary:   pick(b.Primary, def.Primary),
		secondary: pick(b.Secondary, def.Secondary),
		accent:    pick(b.Accent, def.Accent),
	}
}

func parseHex(s string) (rgb, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return rgb{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{}, false
	}
	return rgb{int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)}, true
}

func clean(s string) string {
	return textutil.CleanForRender(s)
}
