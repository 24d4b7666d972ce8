package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"
)

// StagingPrefix names the temporary directories created for ZIP exports.
const StagingPrefix = "posts-export-"

const (
	bundleDir    = "bundle"
	postsDocName = "posts.json"
)

// Archive is a finished ZIP export living in its own temporary directory.
type Archive struct {
	Name string
	Path string
	root string
}

// Cleanup removes the archive and its staging tree.
func (a *Archive) Cleanup() error {
	if a == nil || a.root == "" {
		return nil
	}
	return os.RemoveAll(a.root)
}

// ArchiveName returns posts_export_YYYYMMDD_HHMMSS.zip for t.
func ArchiveName(t time.Time) string {
	return "posts_export_" + t.Format("20060102_150405") + ".zip"
}

// BuildArchive stages posts.json and, with IncludeFiles, copies of every resolved blob,
// then zips the staging tree. The caller owns the returned Archive and must Cleanup it.
func (p *Pipeline) BuildArchive(ctx context.Context, opts Options) (arch *Archive, err error) {
	now := p.now()
	root, err := os.MkdirTemp("", StagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(root)
		}
	}()

	bundle := filepath.Join(root, bundleDir)
	if err = os.MkdirAll(bundle, 0o755); err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}

	doc, err := p.document(ctx, opts, now, false, copyInto(bundle))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = WriteDocument(&buf, doc); err != nil {
		return nil, fmt.Errorf("encode posts document: %w", err)
	}
	if err = os.WriteFile(filepath.Join(bundle, postsDocName), buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write posts document: %w", err)
	}

	name := ArchiveName(now)
	zipPath := filepath.Join(root, name)
	if err = zipDir(ctx, bundle, zipPath); err != nil {
		return nil, err
	}
	return &Archive{Name: name, Path: zipPath, root: root}, nil
}

// copyInto returns a stager writing <dir>/<id>_<name> under bundle.
func copyInto(bundle string) stager {
	return func(dir, id, name, src string) (string, error) {
		rel := path.Join(dir, id+"_"+archiveName(name, filepath.Base(src)))
		dst := filepath.Join(bundle, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", err
		}
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		return rel, nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// zipDir adds every file under dir to a deflated archive at dst, paths relative to dir.
// WalkDir visits entries in lexical order, so the layout is deterministic.
func zipDir(ctx context.Context, dir, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})

	closeErr := zw.Close()
	if err := f.Close(); closeErr == nil {
		closeErr = err
	}
	if walkErr != nil {
		return fmt.Errorf("write archive: %w", walkErr)
	}
	if closeErr != nil {
		return fmt.Errorf("finalize archive: %w", closeErr)
	}
	return nil
}
