package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// PageRef describes one page of a parsed notebook: a stable identifier,
// the page's position, and a hash of its ink content. The identifier
// survives re-parses of the same notebook so derived artifacts can be
// reused; the hash changes when the page is edited.
type PageRef struct {
	Index       int
	PageID      string
	ContentHash string
}

// Renderer is the opaque notebook parser and rasterizer. The binary
// format is vendor-proprietary; the pipeline only needs page enumeration
// and per-page PNG rasters.
type Renderer interface {
	// EnumeratePages parses the notebook and returns its pages in order.
	EnumeratePages(ctx context.Context, r io.ReadSeeker) ([]PageRef, error)

	// RenderPage rasterizes one page to PNG bytes.
	RenderPage(ctx context.Context, r io.ReadSeeker, pageID string) ([]byte, error)
}

// CommandRenderer shells out to an external rasterizer binary. The
// notebook is spooled to a temporary file and the tool is invoked as
//
//	<command> pages <file>            JSON array of {index, page_id, content_hash}
//	<command> render <file> <pageID>  PNG bytes on stdout
//
// keeping the proprietary format parsing out of this process.
type CommandRenderer struct {
	command string
}

// NewCommandRenderer creates a renderer around the given binary.
func NewCommandRenderer(command string) *CommandRenderer {
	return &CommandRenderer{command: command}
}

// spool writes the notebook to a temporary file and returns its path.
// The caller removes it.
func (c *CommandRenderer) spool(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "inkvault-note-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (c *CommandRenderer) run(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", c.command, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// EnumeratePages implements Renderer.
func (c *CommandRenderer) EnumeratePages(ctx context.Context, r io.ReadSeeker) ([]PageRef, error) {
	path, err := c.spool(r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	out, err := c.run(ctx, "pages", path)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Index       int    `json:"index"`
		PageID      string `json:"page_id"`
		ContentHash string `json:"content_hash"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("malformed page listing from %s: %w", c.command, err)
	}

	pages := make([]PageRef, len(raw))
	for i, p := range raw {
		pages[i] = PageRef{Index: p.Index, PageID: p.PageID, ContentHash: p.ContentHash}
	}
	return pages, nil
}

// RenderPage implements Renderer.
func (c *CommandRenderer) RenderPage(ctx context.Context, r io.ReadSeeker, pageID string) ([]byte, error) {
	path, err := c.spool(r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	return c.run(ctx, "render", path, pageID)
}
