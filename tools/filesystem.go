package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/askterm/askterm/config"
	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/llm"
)

// ReadFileTool reads whole files, subject to the hidden-path globs.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file. Args: path (string)."
}

func (t *ReadFileTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Properties: map[string]llm.ToolProperty{
			"path": {Type: "string", Description: "Path of the file to read."},
		},
		Required: []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("missing or invalid 'path' argument")
	}

	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, errors.New("access denied: path '%s' is hidden", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(content), nil
}

// WriteFileTool replaces file contents. Writes are gated behind the same
// approval flow as modifying commands, and blocked entirely on hidden or
// read-only paths.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
	approver Approver
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Requires the user's approval. " +
		"Args: path (string), content (string)."
}

func (t *WriteFileTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Properties: map[string]llm.ToolProperty{
			"path":    {Type: "string", Description: "Path of the file to write."},
			"content": {Type: "string", Description: "Full new content of the file."},
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, pathOk := args["path"].(string)
	content, contentOk := args["content"].(string)
	if !pathOk || !contentOk {
		return nil, errors.New("missing or invalid 'path' or 'content' arguments")
	}

	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, errors.New("access denied: path '%s' is hidden", path)
	}

	readOnly, err := isPathRestricted(path, t.fsAccess.ReadOnly)
	if err != nil {
		return nil, err
	}
	if readOnly {
		return nil, errors.New("access denied: path '%s' is read-only", path)
	}

	printCommandBox(os.Stderr, fmt.Sprintf("write_file %s (%d bytes)", path, len(content)), "file modification")
	if t.approver == nil || !t.approver.Approve("Write this file?") {
		return rejectedMessage, nil
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}
