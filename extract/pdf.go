package extract

import (
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/sanitize"
)

var (
	pdfMagic   = []byte("%PDF-")
	pdfTrailer = []byte("%%EOF")
)

// trailerWindow is how far from the end the %%EOF marker may sit. Appended
// junk past this window fails structural validation.
const trailerWindow = 1024

// extractPDF validates and extracts text from an uploaded PDF.
//
// Validation layers: size cap, magic header bytes, deep content sniffing,
// trailing structural marker, then full pdfcpu structure validation.
// Password-protected and image-only documents are rejected with
// distinguishable errors.
func (e *Extractor) extractPDF(ctx context.Context, src Source) (*Result, error) {
	data := src.Data

	if len(data) == 0 {
		return nil, core.E(core.KindValidation, "empty document payload")
	}
	if len(data) > e.maxPDFBytes {
		return nil, core.E(core.KindValidation, "document exceeds %d byte limit", e.maxPDFBytes)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, core.Wrap(core.KindValidation, "missing PDF header", ErrNotPDF)
	}
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return nil, core.Wrap(core.KindValidation, "content sniffing detected "+mt.String(), ErrNotPDF)
	}
	tail := data
	if len(tail) > trailerWindow {
		tail = tail[len(tail)-trailerWindow:]
	}
	if !bytes.Contains(tail, pdfTrailer) {
		return nil, core.Wrap(core.KindValidation, "missing PDF trailer", ErrNotPDF)
	}

	text, err := e.pdfText(ctx, data)
	if err != nil {
		return nil, err
	}

	text, length, ok := sanitize.SanitizeAndValidate(text, e.minTextLength)
	if !ok {
		return nil, core.Wrap(core.KindExtraction, "document has no usable text layer", ErrNoTextContent)
	}

	title := src.Title
	if strings.TrimSpace(title) == "" && src.Filename != "" {
		title = titleFromFilename(src.Filename)
	}

	return &Result{
		Title:  e.deriveTitle(title, "", text),
		Text:   text,
		Length: length,
	}, nil
}

// pdfText parses the document and decodes text-showing operators from every
// page content stream. pdfcpu operates on in-memory readers, so resource
// release is deterministic on every path.
func (e *Extractor) pdfText(ctx context.Context, data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			return "", core.Wrap(core.KindExtraction, "cannot open document", ErrPasswordProtected)
		}
		return "", core.Wrap(core.KindValidation, "PDF validation failed", ErrNotPDF)
	}

	var sb strings.Builder
	for page := 1; page <= pdfCtx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil {
			e.logger.Warn("skipping unreadable page", "page", page, "err", err)
			continue
		}
		if r == nil {
			continue
		}

		content, err := io.ReadAll(r)
		if err != nil {
			e.logger.Warn("skipping unreadable page", "page", page, "err", err)
			continue
		}

		pageText := decodeContentText(content)
		if pageText != "" {
			sb.WriteString(pageText)
			sb.WriteString("\n\n")
		}
	}

	return sb.String(), nil
}

// decodeContentText scans a decoded PDF content stream and collects the
// operands of text-showing operators (Tj, TJ, ' and "). Positioning
// operators become line breaks. Strings consumed by non-text operators are
// discarded.
func decodeContentText(content []byte) string {
	var out strings.Builder
	var pending []string

	flush := func() {
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '%': // comment to end of line
			for i < len(content) && content[i] != '\n' {
				i++
			}
		case c == '(':
			s, next := parseLiteralString(content, i)
			pending = append(pending, s)
			i = next
		case c == '<':
			if i+1 < len(content) && content[i+1] == '<' {
				i += 2 // dictionary start, not a string
				continue
			}
			s, next := parseHexString(content, i)
			pending = append(pending, s)
			i = next
		case isOperatorStart(c):
			op, next := parseToken(content, i)
			i = next
			switch op {
			case "Tj", "TJ":
				flush()
			case "'", "\"":
				out.WriteByte('\n')
				flush()
			case "Td", "TD", "T*", "ET":
				out.WriteByte('\n')
				pending = pending[:0]
			default:
				// Strings owned by other operators are not text.
				pending = pending[:0]
			}
		default:
			i++
		}
	}

	return out.String()
}

func isOperatorStart(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '\'' || c == '"'
}

func parseToken(content []byte, i int) (string, int) {
	start := i
	for i < len(content) {
		c := content[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '*' || c == '\'' || c == '"' {
			i++
			continue
		}
		break
	}
	return string(content[start:i]), i
}

// parseLiteralString parses a PDF literal string starting at the opening
// parenthesis, honoring escapes and balanced nesting.
func parseLiteralString(content []byte, i int) (string, int) {
	var raw []byte
	depth := 0
	for ; i < len(content); i++ {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return decodeString(raw), i + 1
			}
			i++
			switch content[i] {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b', 'f':
				// ignore
			case '(', ')', '\\':
				raw = append(raw, content[i])
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(content[i] - '0')
				for n := 0; n < 2 && i+1 < len(content) && content[i+1] >= '0' && content[i+1] <= '7'; n++ {
					i++
					v = v*8 + int(content[i]-'0')
				}
				raw = append(raw, byte(v))
			case '\n':
				// line continuation
			default:
				raw = append(raw, content[i])
			}
		case '(':
			depth++
			if depth > 1 {
				raw = append(raw, c)
			}
		case ')':
			depth--
			if depth == 0 {
				return decodeString(raw), i + 1
			}
			raw = append(raw, c)
		default:
			raw = append(raw, c)
		}
	}
	return decodeString(raw), i
}

// parseHexString parses a PDF hex string starting at '<'.
func parseHexString(content []byte, i int) (string, int) {
	var raw []byte
	var hi byte
	haveHi := false
	i++ // skip '<'
	for ; i < len(content); i++ {
		c := content[i]
		if c == '>' {
			i++
			break
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			continue // whitespace inside hex strings is legal
		}
		if haveHi {
			raw = append(raw, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	if haveHi {
		raw = append(raw, hi<<4) // odd final digit pads with zero
	}
	return decodeString(raw), i
}

// decodeString interprets PDF string bytes: UTF-16BE when BOM-prefixed,
// byte-per-rune otherwise.
func decodeString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u16 := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u16 = append(u16, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u16))
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
