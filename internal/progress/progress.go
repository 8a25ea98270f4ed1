package progress

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Frontmatter represents the YAML frontmatter of the progress file
type Frontmatter struct {
	Status  string    `yaml:"status"`
	Issue   string    `yaml:"issue"`
	Updated time.Time `yaml:"updated"`
}

// Ensure creates the progress file for an issue if it does not exist.
// The agent maintains the body between iterations; an existing file is
// left untouched so in-flight notes survive restarts.
func Ensure(path, issueID string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	fm, err := yaml.Marshal(&Frontmatter{
		Status:  "in_progress",
		Issue:   issueID,
		Updated: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# Progress for %s\n\nNo iterations recorded yet.\n", issueID)

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Parse extracts the frontmatter from progress file content
// Returns the frontmatter, remaining content, and any error
func Parse(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &Frontmatter{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:] // skip \n---

	var fm Frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}

	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}

// ReadStatus reads the status field from the progress file at path
func ReadStatus(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	fm, _, err := Parse(content)
	if err != nil {
		return "", err
	}
	return fm.Status, nil
}

// Remove deletes the progress file. Missing files are not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
