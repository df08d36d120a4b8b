package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Minimal views of the OCF container and OPF package document. Parsing is
// read-only; patching happens with byte surgery further down so the rest
// of the publisher's XML survives untouched (encoding/xml round-trips are
// lossy on namespaces and attribute order).

type ocfContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Metas []opfMeta `xml:"meta"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Itemrefs []opfItemref `xml:"itemref"`
}

type opfItemref struct {
	IDRef string `xml:"idref,attr"`
}

// locateOPF finds the package document: the container.xml rootfile when
// present, otherwise the first .opf entry in the archive.
func locateOPF(zr *zip.Reader) string {
	if data, err := readZipFile(zr, "META-INF/container.xml"); err == nil {
		var c ocfContainer
		if err := xml.Unmarshal(data, &c); err == nil {
			for _, rf := range c.Rootfiles {
				if rf.FullPath != "" {
					return rf.FullPath
				}
			}
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".opf") {
			return f.Name
		}
	}
	return ""
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("no such entry: %s", name)
}

// coverImageHref resolves the cover image declared by the package, trying
// the EPUB 2 meta[name=cover] pointer first and the EPUB 3 cover-image
// manifest property second. The href comes back relative to the OPF.
func coverImageHref(pkg *opfPackage) (string, bool) {
	var coverID string
	for _, m := range pkg.Metadata.Metas {
		if m.Name == "cover" {
			coverID = m.Content
			break
		}
	}
	if coverID != "" {
		for _, it := range pkg.Manifest.Items {
			if it.ID == coverID {
				if strings.HasPrefix(it.MediaType, "image/") {
					return it.Href, true
				}
				break
			}
		}
	}

	for _, it := range pkg.Manifest.Items {
		if hasProperty(it.Properties, "cover-image") && strings.HasPrefix(it.MediaType, "image/") {
			return it.Href, true
		}
	}
	return "", false
}

func hasProperty(properties, want string) bool {
	for _, p := range strings.Fields(properties) {
		if p == want {
			return true
		}
	}
	return false
}

// firstSpinePageShowsCover checks whether the first reading-order page
// already references the cover image. When it does, the book opens on its
// cover and there is nothing to inject.
func firstSpinePageShowsCover(zr *zip.Reader, pkg *opfPackage, opfPath, coverHref string) bool {
	if len(pkg.Spine.Itemrefs) == 0 {
		return false
	}
	firstID := pkg.Spine.Itemrefs[0].IDRef
	for _, it := range pkg.Manifest.Items {
		if it.ID != firstID {
			continue
		}
		full := joinOPF(opfPath, it.Href)
		page, err := readZipFile(zr, full)
		if err != nil {
			return false
		}
		return bytes.Contains(page, []byte(coverHref))
	}
	return false
}

// joinOPF resolves an OPF-relative href to a zip entry path.
func joinOPF(opfPath, href string) string {
	dir := path.Dir(opfPath)
	if dir == "." {
		return href
	}
	return path.Join(dir, href)
}

// --- byte surgery ------------------------------------------------------

var errNoAnchor = errors.New("epub: opf anchor tag not found")

// insertBefore places insert immediately before the first occurrence of
// anchor.
func insertBefore(doc []byte, anchor, insert string) ([]byte, error) {
	i := bytes.Index(doc, []byte(anchor))
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", errNoAnchor, anchor)
	}
	out := make([]byte, 0, len(doc)+len(insert))
	out = append(out, doc[:i]...)
	out = append(out, insert...)
	out = append(out, doc[i:]...)
	return out, nil
}

// insertAfterOpeningTag places insert right after the opening tag that
// starts with prefix (e.g. "<spine"). Self-closing tags don't count as
// opened.
func insertAfterOpeningTag(doc []byte, prefix, insert string) ([]byte, error) {
	start := bytes.Index(doc, []byte(prefix))
	if start < 0 {
		return nil, fmt.Errorf("%w: %s", errNoAnchor, prefix)
	}
	end := bytes.IndexByte(doc[start:], '>')
	if end < 0 {
		return nil, fmt.Errorf("%w: %s not closed", errNoAnchor, prefix)
	}
	end += start
	if doc[end-1] == '/' {
		return nil, fmt.Errorf("%w: %s is self-closing", errNoAnchor, prefix)
	}
	out := make([]byte, 0, len(doc)+len(insert))
	out = append(out, doc[:end+1]...)
	out = append(out, insert...)
	out = append(out, doc[end+1:]...)
	return out, nil
}

// appendGuideReference adds a cover reference to the guide, creating the
// guide element when the package has none.
func appendGuideReference(doc []byte, refXML string) ([]byte, error) {
	if bytes.Contains(doc, []byte("</guide>")) {
		return insertBefore(doc, "</guide>", refXML)
	}
	return insertBefore(doc, "</package>", "<guide>"+refXML+"</guide>")
}
