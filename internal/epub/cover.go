package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strings"
)

const (
	coverPageID   = "rm-cover-page"
	coverPageFile = "rm_cover.xhtml"

	coverImageID   = "rm-cover-image"
	coverImageFile = "rm_cover.svg"

	// titleLineChars is the target line width for wrapped cover titles.
	titleLineChars = 18
	titleMaxLines  = 6
)

const coverPageTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Cover</title></head>
<body style="margin:0;padding:0;">
<div style="text-align:center;">
<img src="%s" style="max-width:100%%;max-height:100%%;" alt="Cover"/>
</div>
</body>
</html>
`

// coverPageXHTML renders the cover page document around an image href.
func coverPageXHTML(imageHref string) []byte {
	return []byte(fmt.Sprintf(coverPageTemplate, xmlEscape(imageHref)))
}

// synthesizeCoverSVG draws a plain title-card cover: neutral background,
// the title centered, sized to the target page so the device thumbnail
// has the right aspect ratio.
func synthesizeCoverSVG(title string, pageWidthPt, pageHeightPt float64) []byte {
	w := int(math.Round(pageWidthPt))
	h := int(math.Round(pageHeightPt))
	if w <= 0 || h <= 0 {
		w, h = 446, 598
	}

	lines := wrapTitle(title, titleLineChars, titleMaxLines)
	fontSize := w / 12
	if fontSize < 14 {
		fontSize = 14
	}
	lineHeight := fontSize + fontSize/3

	var b bytes.Buffer
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", w, h, w, h)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#f4f1ea"/>`+"\n", w, h)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="#c9c2b4" stroke-width="2"/>`+"\n",
		w/16, h/16, w-w/8, h-h/8)

	// vertically center the block of lines around the upper-middle of the page
	startY := h/2 - (len(lines)-1)*lineHeight/2
	for i, line := range lines {
		fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle" font-family="Georgia, serif" font-size="%d" fill="#2b2b2b">%s</text>`+"\n",
			w/2, startY+i*lineHeight, fontSize, xmlEscape(line))
	}

	fmt.Fprintf(&b, `</svg>`+"\n")
	return b.Bytes()
}

// wrapTitle splits a title onto display lines, breaking on spaces. Titles
// that would overflow maxLines get an ellipsis on the last line.
func wrapTitle(title string, lineChars, maxLines int) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return []string{"Untitled"}
	}

	words := strings.Fields(title)
	var lines []string
	current := ""
	for _, word := range words {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= lineChars:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] += "…"
	}
	return lines
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
