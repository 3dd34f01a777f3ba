package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"
)

// FileToolName is the registry name of the file tool.
const FileToolName = "file"

// Operation names of the file tool.
const (
	OpSave = "save"
	OpLoad = "load"
	OpList = "list"
)

// FileOptions configures a file tool.
type FileOptions struct {
	// Clock stamps saved files. Default time.Now.
	Clock func() time.Time
}

// fileStore keeps JSON documents under a base directory. All paths are
// resolved through os.Root so no operation escapes the directory.
type fileStore struct {
	root  *os.Root
	clock func() time.Time
}

// NewFileTool creates a tool persisting JSON documents in dir, creating it if
// needed. The returned close func releases the directory handle.
//
// Operations:
//   - save {name, data} writes {"timestamp", "data"} to <name>_<stamp>.json and returns the file name
//   - load {file} returns the stored document
//   - list {prefix?} returns stored file names, sorted
func NewFileTool(dir string, optFns ...func(o *FileOptions)) (*FunctionTool, func() error, error) {
	opts := FileOptions{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("file tool: create %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("file tool: open %s: %w", dir, err)
	}
	s := &fileStore{root: root, clock: opts.Clock}

	t := NewFunctionTool(FileToolName, "Save and load JSON documents such as journal entries").
		Handle(OpSave, `{
			"type": "object",
			"required": ["name", "data"],
			"properties": {
				"name": {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
				"data": {"type": "object"}
			}
		}`, s.save).
		Handle(OpLoad, `{
			"type": "object",
			"required": ["file"],
			"properties": {"file": {"type": "string", "minLength": 1}}
		}`, s.load).
		Handle(OpList, `{
			"type": "object",
			"properties": {"prefix": {"type": "string"}}
		}`, s.list)

	return t, root.Close, nil
}

func (s *fileStore) save(ctx context.Context, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.clock()
	doc := map[string]any{"timestamp": now.Format(time.RFC3339Nano), "data": args["data"]}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("%s_%s", args["name"], now.Format("20060102_150405"))
	for i := 0; ; i++ {
		name := base + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.json", base, i)
		}
		f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(raw); err != nil {
			_ = f.Close()
			return nil, err
		}
		return name, f.Close()
	}
}

func (s *fileStore) load(ctx context.Context, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.root.Open(args["file"].(string))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var doc map[string]any
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", args["file"], err)
	}
	return doc, nil
}

func (s *fileStore) list(ctx context.Context, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, _ := args["prefix"].(string)
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}
