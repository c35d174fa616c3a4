package gitcore

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // Git uses SHA-1 for object hashing
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// setupTestRepo builds a Repository backed by a real temp directory with a
// minimal .git layout (objects/, refs/heads/, HEAD), fully initialized so
// that commitsMap/Branches/Head never see a nil map. Tests populate its
// object store with createBlob/createTree and its commit history with
// wireHeadCommit.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	workDir := t.TempDir()
	gitDir := filepath.Join(workDir, ".git")

	if err := os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755); err != nil {
		t.Fatalf("setupTestRepo: mkdir objects: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755); err != nil {
		t.Fatalf("setupTestRepo: mkdir refs/heads: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatalf("setupTestRepo: write HEAD: %v", err)
	}

	return &Repository{
		gitDir:      gitDir,
		workDir:     workDir,
		refs:        make(map[string]Hash),
		commits:     make([]*Commit, 0),
		commitMap:   make(map[Hash]*Commit),
		tags:        make([]*Tag, 0),
		stashes:     make([]*StashEntry, 0),
		packIndices: make([]*PackIndex, 0),
	}
}

// hashObjectContent computes the git object hash for a given type and raw
// content, mirroring hashBlobContent's "<type> <size>\0<content>" scheme for
// non-blob object types.
func hashObjectContent(objType string, content []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(content))
	h := sha1.New() //nolint:gosec // Git uses SHA-1 for object hashing
	h.Write([]byte(header))
	h.Write(content)
	return Hash(fmt.Sprintf("%x", h.Sum(nil)))
}

// writeLooseObject zlib-compresses "<type> <size>\0<content>" and writes it
// to gitDir/objects/xx/yyyy..., the loose object layout readLooseObjectRaw
// expects.
func writeLooseObject(t *testing.T, gitDir string, hash Hash, objType string, content []byte) {
	t.Helper()

	header := fmt.Sprintf("%s %d\x00", objType, len(content))
	data := append([]byte(header), content...)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("writeLooseObject: compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("writeLooseObject: close zlib writer: %v", err)
	}

	objDir := filepath.Join(gitDir, "objects", string(hash)[:2])
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		t.Fatalf("writeLooseObject: mkdir %q: %v", objDir, err)
	}
	objPath := filepath.Join(objDir, string(hash)[2:])
	if err := os.WriteFile(objPath, compressed.Bytes(), 0o644); err != nil {
		t.Fatalf("writeLooseObject: write %q: %v", objPath, err)
	}
}

// createBlob writes content as a loose blob object and returns its hash.
func createBlob(t *testing.T, repo *Repository, content []byte) Hash {
	t.Helper()
	hash := hashBlobContent(content)
	writeLooseObject(t, repo.gitDir, hash, objectTypeBlob, content)
	return hash
}

// createTree encodes entries in git's binary tree format ("mode name\0" plus
// a raw 20-byte hash per entry), writes it as a loose tree object, and
// returns its hash.
func createTree(t *testing.T, repo *Repository, entries []TreeEntry) Hash {
	t.Helper()

	var buf bytes.Buffer
	for _, entry := range entries {
		buf.WriteString(entry.Mode)
		buf.WriteByte(' ')
		buf.WriteString(entry.Name)
		buf.WriteByte(0)

		var hashBytes [20]byte
		for i := range hashBytes {
			var b int
			fmt.Sscanf(string(entry.ID[i*2:i*2+2]), "%02x", &b)
			hashBytes[i] = byte(b)
		}
		buf.Write(hashBytes[:])
	}

	content := buf.Bytes()
	hash := hashObjectContent(objectTypeTree, content)
	writeLooseObject(t, repo.gitDir, hash, objectTypeTree, content)
	return hash
}

// wireHeadCommit creates a synthetic commit pointing at treeHash, registers
// it as the repository's sole commit, and points HEAD/refs/heads/main at it.
func wireHeadCommit(repo *Repository, treeHash Hash) {
	commit := &Commit{
		ID:      hashObjectContent(objectTypeCommit, []byte("tree "+string(treeHash))),
		Tree:    treeHash,
		Message: "test commit",
	}
	repo.commits = append(repo.commits, commit)
	repo.commitMap[commit.ID] = commit
	repo.refs["refs/heads/main"] = commit.ID
	repo.head = commit.ID
	repo.headRef = "refs/heads/main"
}

// writeDiskFile writes content to relPath under repo's working directory,
// creating any missing parent directories.
func writeDiskFile(t *testing.T, repo *Repository, relPath string, content []byte) {
	t.Helper()
	path := filepath.Join(repo.workDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("writeDiskFile: mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writeDiskFile: write %q: %v", path, err)
	}
}
