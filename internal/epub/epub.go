// Package epub prepares EPUB containers for the device.
//
// Two things stand between a desktop EPUB and a good upload: the firmware
// rejects containers whose first zip entry is not a clean `mimetype`
// (desktop tools love adding data-descriptor flags and extra fields), and
// books without a cover page open on a wall of text, which becomes the
// device thumbnail. EnsureCover repacks the container and, when asked,
// makes sure reading order starts on a cover.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/remsync/remsync/internal/utils"
)

// CoverAction says what EnsureCover did about the cover.
type CoverAction int

const (
	// CoverUnchanged: the book already opens on its cover, injection was
	// disabled, or the input isn't an EPUB.
	CoverUnchanged CoverAction = iota

	// CoverPageInjected: the book had cover art but no cover page; a page
	// showing the art was added up front.
	CoverPageInjected

	// CoverSynthesized: the book had no cover art at all; a title-card
	// image and page were generated and added up front.
	CoverSynthesized
)

func (a CoverAction) String() string {
	switch a {
	case CoverPageInjected:
		return "cover page injected"
	case CoverSynthesized:
		return "cover synthesized"
	default:
		return "unchanged"
	}
}

// Options controls EnsureCover.
type Options struct {
	// InjectCover enables cover inspection and injection. Repacking for
	// firmware compatibility happens regardless.
	InjectCover bool

	// Title is the text drawn on a synthesized cover. Defaults to the
	// file's base name.
	Title string

	// Page dimensions for synthesized covers, in points.
	PageWidthPt  float64
	PageHeightPt float64
}

// Result describes the prepared file.
type Result struct {
	// Path is the file to upload. Equal to the input for non-EPUBs.
	Path string

	// Action is what happened to the cover.
	Action CoverAction

	// Staged is true when Path is a new file under stageDir that the
	// caller owns.
	Staged bool
}

// coverPatch is a planned modification to the package document plus the
// files that go with it.
type coverPatch struct {
	opfPath  string
	patched  []byte
	newFiles map[string][]byte
	action   CoverAction
}

// IsEPUB reports whether the filename looks like an EPUB container.
func IsEPUB(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".epub")
}

// EnsureCover rewrites an EPUB so the device accepts it and opens it on a
// cover page. It is idempotent: running it on its own output changes
// nothing further. Non-EPUB inputs and unreadable containers pass through
// untouched.
func EnsureCover(path, stageDir string, opts Options) (*Result, error) {
	if !IsEPUB(path) {
		return &Result{Path: path, Action: CoverUnchanged}, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		// Not a readable container. The device may still take it; let the
		// upload decide instead of failing here.
		slog.Warn("epub is not a readable container, passing through", "path", path, "error", err)
		return &Result{Path: path, Action: CoverUnchanged}, nil
	}
	defer zr.Close()

	var patch *coverPatch
	if opts.InjectCover {
		patch = planCover(&zr.Reader, path, opts)
	}

	if stageDir == "" {
		stageDir = os.TempDir()
	}
	outPath := filepath.Join(stageDir, filepath.Base(path))
	if err := repack(&zr.Reader, outPath, patch); err != nil {
		return nil, fmt.Errorf("prepare epub %s: %w", filepath.Base(path), err)
	}

	action := CoverUnchanged
	if patch != nil {
		action = patch.action
	}
	return &Result{Path: outPath, Action: action, Staged: true}, nil
}

// planCover decides whether the package needs a cover page and builds the
// patch. A nil return means the book is fine as it is (or too odd to touch
// safely, in which case it is left alone).
func planCover(zr *zip.Reader, srcPath string, opts Options) *coverPatch {
	opfPath := locateOPF(zr)
	if opfPath == "" {
		slog.Warn("epub has no package document, skipping cover check", "path", srcPath)
		return nil
	}

	opfBytes, err := readZipFile(zr, opfPath)
	if err != nil {
		return nil
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfBytes, &pkg); err != nil {
		slog.Warn("unparseable package document, skipping cover check", "path", srcPath, "error", err)
		return nil
	}

	// Nothing sensible to prepend to an empty reading order.
	if len(pkg.Spine.Itemrefs) == 0 {
		return nil
	}

	coverHref, hasCover := coverImageHref(&pkg)
	if hasCover && firstSpinePageShowsCover(zr, &pkg, opfPath, coverHref) {
		return nil
	}

	if hasCover {
		return planCoverPage(opfPath, opfBytes, coverHref)
	}
	return planSyntheticCover(opfPath, opfBytes, srcPath, opts)
}

// planCoverPage injects an XHTML page that shows the existing cover art.
func planCoverPage(opfPath string, opfBytes []byte, coverHref string) *coverPatch {
	itemXML := fmt.Sprintf(`<item id=%q href=%q media-type="application/xhtml+xml"/>`, coverPageID, coverPageFile)
	patched, err := insertBefore(opfBytes, "</manifest>", itemXML)
	if err == nil {
		patched, err = insertAfterOpeningTag(patched, "<spine", fmt.Sprintf(`<itemref idref=%q/>`, coverPageID))
	}
	if err == nil {
		patched, err = appendGuideReference(patched, fmt.Sprintf(`<reference type="cover" title="Cover" href=%q/>`, coverPageFile))
	}
	if err != nil {
		slog.Warn("could not patch package document, skipping cover injection", "error", err)
		return nil
	}

	return &coverPatch{
		opfPath: opfPath,
		patched: patched,
		newFiles: map[string][]byte{
			joinOPF(opfPath, coverPageFile): coverPageXHTML(coverHref),
		},
		action: CoverPageInjected,
	}
}

// planSyntheticCover generates a title-card image plus the page showing it
// and registers both, including the cover meta so a rerun sees the book as
// covered.
func planSyntheticCover(opfPath string, opfBytes []byte, srcPath string, opts Options) *coverPatch {
	title := opts.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	}

	imageXML := fmt.Sprintf(`<item id=%q href=%q media-type="image/svg+xml"/>`, coverImageID, coverImageFile)
	pageXML := fmt.Sprintf(`<item id=%q href=%q media-type="application/xhtml+xml"/>`, coverPageID, coverPageFile)

	patched, err := insertBefore(opfBytes, "</manifest>", imageXML+pageXML)
	if err == nil {
		patched, err = insertAfterOpeningTag(patched, "<spine", fmt.Sprintf(`<itemref idref=%q/>`, coverPageID))
	}
	if err == nil {
		patched, err = insertBefore(patched, "</metadata>", fmt.Sprintf(`<meta name="cover" content=%q/>`, coverImageID))
	}
	if err == nil {
		patched, err = appendGuideReference(patched, fmt.Sprintf(`<reference type="cover" title="Cover" href=%q/>`, coverPageFile))
	}
	if err != nil {
		slog.Warn("could not patch package document, skipping cover synthesis", "error", err)
		return nil
	}

	return &coverPatch{
		opfPath: opfPath,
		patched: patched,
		newFiles: map[string][]byte{
			joinOPF(opfPath, coverImageFile): synthesizeCoverSVG(title, opts.PageWidthPt, opts.PageHeightPt),
			joinOPF(opfPath, coverPageFile):  coverPageXHTML(coverImageFile),
		},
		action: CoverSynthesized,
	}
}

// repack writes the container fresh: `mimetype` first, stored, no extra
// fields, then every original entry deflated (OPF swapped when patched),
// then any new files.
func repack(zr *zip.Reader, outPath string, patch *coverPatch) error {
	if err := utils.EnsureParent(outPath); err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	// Leaving Modified zero keeps the writer from attaching timestamp
	// extra fields, which must not appear on the mimetype entry.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		return err
	}

	for _, item := range zr.File {
		if item.Name == "mimetype" {
			continue
		}

		data, err := readZipFile(zr, item.Name)
		if err != nil {
			return fmt.Errorf("read %s: %w", item.Name, err)
		}
		if patch != nil && item.Name == patch.opfPath {
			data = patch.patched
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: item.Name, Method: zip.Deflate})
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}

	if patch != nil {
		names := make([]string, 0, len(patch.newFiles))
		for name := range patch.newFiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
			if err != nil {
				return err
			}
			if _, err := w.Write(patch.newFiles[name]); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return out.Sync()
}
