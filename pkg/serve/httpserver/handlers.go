// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lirios/ostree-upload/pkg/transport"
)

// Ping answers liveness probes with an empty object.
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	JsonEncode(w, struct{}{})
}

// Info reports the repository mode and refs.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	info, err := s.receiver.GetInfo()
	if err != nil {
		renderInternal(w, r, err)
		return
	}
	JsonEncode(w, info)
}

// Update starts a session from the client's update set. The set is
// copied into the session before validation runs, so a rejected update
// leaves it loaded; the follow-up /update overwrites it.
func (s *Server) Update(w http.ResponseWriter, r *http.Request) {
	var req transport.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "decode update request: %v", err)
		return
	}
	s.session.Lock()
	defer s.session.Unlock()
	s.session.Begin(req.Refs)
	status, err := s.receiver.CheckUpdate(req.Refs)
	if err != nil {
		renderInternal(w, r, err)
		return
	}
	JsonEncode(w, status)
}

// MissingObjects filters the client's wanted list down to the objects
// this repository does not already hold with matching fingerprints.
func (s *Server) MissingObjects(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, transport.MissingObjectsLimit)
	var args transport.MissingObjectsArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "request body over %d bytes, chunk the wanted list", transport.MissingObjectsLimit)
			return
		}
		renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "decode missing objects request: %v", err)
		return
	}
	missing := make([]transport.NeededObject, 0, len(args.Wanted))
	for _, wanted := range args.Wanted {
		stored, err := s.isStored(&wanted)
		if err != nil {
			renderInternal(w, r, err)
			return
		}
		if !stored {
			missing = append(missing, wanted)
		}
	}
	JsonEncode(w, &transport.MissingObjectsResponse{Missing: missing})
}

// isStored reports whether the object already exists, staged or
// promoted, with the declared fingerprint. A mismatching file counts as
// missing so the client re-uploads over it.
func (s *Server) isStored(wanted *transport.NeededObject) (bool, error) {
	for _, path := range []string{s.receiver.TempPath(wanted.ObjectName), s.receiver.ObjectPath(wanted.ObjectName)} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, err
		}
		fp, err := s.receiver.Fingerprint(path)
		if err != nil {
			return false, err
		}
		return fp == wanted.Checksum, nil
	}
	return false, nil
}

// Upload stages one object. Fields arrive in order rev, object_name,
// checksum, file; the body is streamed to disk as it is read. The
// session lock is held for the whole request.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	s.session.Lock()
	defer s.session.Unlock()
	if !s.session.Active() {
		renderWrongRepoState(w, r, "idle", "receiving")
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "read multipart body: %v", err)
		return
	}
	var rev, objectName, checksum string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "read multipart body: %v", err)
			return
		}
		switch part.FormName() {
		case "rev":
			if rev, err = readField(part); err != nil {
				renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "read rev field: %v", err)
				return
			}
		case "object_name":
			if objectName, err = readField(part); err != nil {
				renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "read object_name field: %v", err)
				return
			}
		case "checksum":
			if checksum, err = readField(part); err != nil {
				renderFailureFormat(w, r, http.StatusBadRequest, transport.ErrorTypeGeneric, "read checksum field: %v", err)
				return
			}
		case "file":
			if rev == "" || objectName == "" || checksum == "" {
				// Malformed upload; swallow the file part.
				JsonEncode(w, &transport.Status{Status: true})
				return
			}
			status, err := s.receiveFile(objectName, checksum, part)
			if err != nil {
				renderInternal(w, r, err)
				return
			}
			JsonEncode(w, status)
			return
		}
	}
	JsonEncode(w, &transport.Status{Status: true})
}

func readField(part *multipart.Part) (string, error) {
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(part, 4096)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// receiveFile applies the idempotent staging rules: a staged or stored
// copy with the right fingerprint short-circuits, anything else is
// streamed into the staging area.
func (s *Server) receiveFile(objectName, checksum string, body io.Reader) (*transport.Status, error) {
	tempPath := s.receiver.TempPath(objectName)
	if _, err := os.Stat(tempPath); err == nil {
		fp, err := s.receiver.Fingerprint(tempPath)
		if err != nil {
			return nil, err
		}
		if fp == checksum {
			s.session.Record(objectName)
			return &transport.Status{Status: true, Message: fmt.Sprintf("Object %s previously received", objectName)}, nil
		}
	}
	objectPath := s.receiver.ObjectPath(objectName)
	if _, err := os.Stat(objectPath); err == nil {
		fp, err := s.receiver.Fingerprint(objectPath)
		if err != nil {
			return nil, err
		}
		if fp == checksum {
			return &transport.Status{Status: true, Message: fmt.Sprintf("Object %s already stored", objectName)}, nil
		}
	}
	if err := streamToFile(tempPath, body); err != nil {
		return nil, fmt.Errorf("stage object %s: %w", objectName, err)
	}
	s.session.Record(objectName)
	return &transport.Status{Status: true}, nil
}

// streamToFile copies body to path chunk by chunk, overwriting any
// previous staging attempt. A failed copy leaves the partial file for
// the next attempt to overwrite.
func streamToFile(path string, body io.Reader) error {
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(fd, body, buf); err != nil {
		_ = fd.Close()
		return err
	}
	return fd.Close()
}

// Done promotes every received object out of staging, rewrites the
// negotiated refs and closes the session. All staged files are checked
// before the first rename so a lost file cannot leave a half-promoted
// batch.
func (s *Server) Done(w http.ResponseWriter, r *http.Request) {
	s.session.Lock()
	defer s.session.Unlock()
	if !s.session.Active() {
		renderWrongRepoState(w, r, "idle", "receiving")
		return
	}
	received := s.session.Received()
	sort.Strings(received)
	for _, objectName := range received {
		if _, err := os.Stat(s.receiver.TempPath(objectName)); err != nil {
			renderInternal(w, r, fmt.Errorf("staged object %s unavailable: %w", objectName, err))
			return
		}
	}
	for _, objectName := range received {
		objectPath := s.receiver.ObjectPath(objectName)
		if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
			renderInternal(w, r, err)
			return
		}
		if err := os.Rename(s.receiver.TempPath(objectName), objectPath); err != nil {
			renderInternal(w, r, fmt.Errorf("promote object %s: %w", objectName, err))
			return
		}
	}
	if err := s.receiver.UpdateRefs(s.session.UpdateRefs()); err != nil {
		renderInternal(w, r, err)
		return
	}
	s.session.End()
	JsonEncode(w, &transport.Status{Status: true})
}
