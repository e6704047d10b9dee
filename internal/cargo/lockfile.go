package cargo

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/schaermu/cratevendor/internal/fsutil"
)

// RemoveLockChecksums drops every `checksum = "..."` line from a Cargo.lock.
//
// Resolving against the real registry records checksums, but crates fetched
// into the vendor directory carry an empty checksum manifest, and cargo refuses
// a lock file whose checksums it cannot verify. A missing lock file is not an error.
func RemoveLockChecksums(lockPath string) error {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", lockPath, err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	changed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "checksum = ") {
			changed = true
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", lockPath, err)
	}

	if !changed {
		return nil
	}
	return fsutil.WriteFile(lockPath, out.Bytes())
}
