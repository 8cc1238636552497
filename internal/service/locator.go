package service

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/counsel-labs/lexrag/internal/domain"
)

// ObjectStore is the cloud leg of document resolution. Nil when cloud
// storage is not configured for the deployment.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// ErrObjectNotFound must be returned (or wrapped) by ObjectStore
// implementations when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// DocumentContent is a resolved document with where it was found.
type DocumentContent struct {
	DocumentID string
	Filename   string
	Content    []byte
	// Location is one of "primary", "chunked" or "cloud".
	Location string
	Path     string
}

// LocatorService resolves a logical document identifier to content by
// searching an ordered list of storage backends, short-circuiting at the
// first hit:
//
//  1. exact path under the tenant's primary documents root
//  2. recursive filename match under the primary root
//  3. exact path under the secondary "chunked" root
//  4. recursive filename match under the chunked root
//  5. cloud storage, exact key then a chunked_-prefixed variant
//
// Every local resolution is confined to the tenant's roots; anything
// escaping them is NotFound, never an error leak.
type LocatorService struct {
	objectStore ObjectStore
	s3Prefix    string
}

func NewLocatorService(objectStore ObjectStore, s3Prefix string) *LocatorService {
	return &LocatorService{
		objectStore: objectStore,
		s3Prefix:    s3Prefix,
	}
}

// Resolve finds documentID for the tenant or returns NotFound.
func (s *LocatorService) Resolve(ctx context.Context, tenant *domain.Tenant, documentID string) (*DocumentContent, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document id is required")
	}

	roots := []struct {
		location string
		root     string
	}{
		{"primary", tenant.DocumentsRoot},
		{"chunked", tenant.ChunkedRoot},
	}

	for _, r := range roots {
		if r.root == "" {
			continue
		}
		if doc := s.resolveLocal(r.location, r.root, documentID); doc != nil {
			return doc, nil
		}
	}

	if s.objectStore != nil {
		if doc, err := s.resolveCloud(ctx, tenant, documentID); err != nil {
			// Cloud unavailability degrades to NotFound rather than
			// failing the request.
			log.Printf("warning: cloud document lookup failed for %q: %v", documentID, err)
		} else if doc != nil {
			return doc, nil
		}
	}

	return nil, domain.ErrDocumentNotFound
}

// resolveLocal tries an exact path, then a recursive basename match.
func (s *LocatorService) resolveLocal(location, root, documentID string) *DocumentContent {
	if candidate, ok := securePath(root, documentID); ok {
		if doc := readLocal(location, documentID, candidate); doc != nil {
			return doc
		}
	}

	base := path.Base(documentID)
	var found string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return fs.SkipAll
		}
		if !d.IsDir() && d.Name() == base {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if found == "" {
		return nil
	}
	if !within(root, found) {
		return nil
	}
	return readLocal(location, documentID, found)
}

func (s *LocatorService) resolveCloud(ctx context.Context, tenant *domain.Tenant, documentID string) (*DocumentContent, error) {
	keys := []string{
		s.cloudKey(tenant, documentID),
		s.cloudKey(tenant, "chunked_"+documentID),
	}

	for _, key := range keys {
		content, err := s.objectStore.GetObject(ctx, key)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				continue
			}
			return nil, err
		}
		return &DocumentContent{
			DocumentID: documentID,
			Filename:   path.Base(documentID),
			Content:    content,
			Location:   "cloud",
			Path:       key,
		}, nil
	}
	return nil, nil
}

func (s *LocatorService) cloudKey(tenant *domain.Tenant, documentID string) string {
	return path.Join(s.s3Prefix, tenant.ID, "documents", documentID)
}

func readLocal(location, documentID, p string) *DocumentContent {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return nil
	}
	content, err := os.ReadFile(p)
	if err != nil {
		return nil
	}
	return &DocumentContent{
		DocumentID: documentID,
		Filename:   filepath.Base(p),
		Content:    content,
		Location:   location,
		Path:       p,
	}
}

// securePath joins documentID onto root and confirms the result stays
// inside root. Absolute paths and traversal sequences resolve to
// (_, false).
func securePath(root, documentID string) (string, bool) {
	if filepath.IsAbs(documentID) {
		return "", false
	}
	joined := filepath.Join(root, filepath.Clean("/"+documentID))
	if !within(root, joined) {
		return "", false
	}
	return joined, true
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
