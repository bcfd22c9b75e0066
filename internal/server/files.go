package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nexusbbs/nexusd/internal/fileindex"
	"github.com/nexusbbs/nexusd/internal/fileio"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

// areaFor resolves the calling session's file area (§4.4: "root resolves to
// users/<username>/ if it exists else shared/").
func (s *Server) areaFor(sess *session.Session) (fileio.Area, error) {
	return fileio.Resolve(s.cfg.DataRoot, sess.Username())
}

func entryView(area fileio.Area, relPath, absPath string, info os.FileInfo) proto.FileEntry {
	return proto.FileEntry{
		Path:        filepath.ToSlash(relPath),
		Name:        info.Name(),
		Size:        info.Size(),
		Modified:    info.ModTime(),
		IsDirectory: info.IsDir(),
	}
}

func fileErr(kind model.Kind, message string) *model.Error {
	return &model.Error{Kind: kind, Message: message}
}

func (s *Server) handleFileList(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileList](payload)
	if err != nil {
		return protocolErr("malformed FileList")
	}
	if !sess.Permissions().Has(model.PermFileList) {
		return result{respType: "FileListResponse", err: permDenied()}
	}
	if req.Root && !sess.Permissions().Has(model.PermFileRoot) {
		return result{respType: "FileListResponse", err: permDenied()}
	}

	area, err := s.areaFor(sess)
	if err != nil {
		return result{respType: "FileListResponse", err: fileErr(model.KindResource, "area resolve failed")}
	}
	abs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		return result{respType: "FileListResponse", err: fileErr(model.KindValidation, "invalid path")}
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return result{respType: "FileListResponse", err: fileErr(model.KindNotFound, "directory not found")}
	}

	if !sess.IsAdmin() && s.isDropboxHidden(area, req.Path, req.Root, sess) {
		return result{respType: "FileListResponse", err: permDenied()}
	}

	out := make([]proto.FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(req.Path, e.Name()))
		out = append(out, entryView(area, rel, filepath.Join(abs, e.Name()), info))
	}
	return result{respType: "FileListResponse", payload: proto.FileListResponse{Success: true, Entries: out}}
}

// isDropboxHidden applies §4.4's folder-type suffix rule: a [NEXUS-DB]
// folder is admin-only to list/download; [NEXUS-DB-user] additionally
// permits its owner.
func (s *Server) isDropboxHidden(area fileio.Area, relPath string, root bool, sess *session.Session) bool {
	capa := fileio.DirSuffixCapability(filepath.Base(relPath))
	if !capa.Dropbox && !capa.DropboxPerUser {
		return false
	}
	if capa.DropboxPerUser && !area.IsShared {
		return false
	}
	return true
}

func (s *Server) handleFileInfo(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileInfo](payload)
	if err != nil {
		return protocolErr("malformed FileInfo")
	}
	if !sess.Permissions().Has(model.PermFileInfo) {
		return result{respType: "FileInfoResponse", err: permDenied()}
	}
	area, err := s.areaFor(sess)
	if err != nil {
		return result{respType: "FileInfoResponse", err: fileErr(model.KindResource, "area resolve failed")}
	}
	abs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		return result{respType: "FileInfoResponse", err: fileErr(model.KindValidation, "invalid path")}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return result{respType: "FileInfoResponse", err: fileErr(model.KindNotFound, "file not found")}
	}
	view := entryView(area, req.Path, abs, info)
	return result{respType: "FileInfoResponse", payload: proto.FileInfoResponse{Success: true, Entry: &view}}
}

func (s *Server) handleFileCreateDir(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileCreateDir](payload)
	if err != nil {
		return protocolErr("malformed FileCreateDir")
	}
	if !sess.Permissions().Has(model.PermFileUpload) {
		return result{respType: "FileCreateDirResponse", err: permDenied()}
	}
	area, err := s.areaFor(sess)
	if err != nil {
		return result{respType: "FileCreateDirResponse", err: fileErr(model.KindResource, "area resolve failed")}
	}
	abs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		return result{respType: "FileCreateDirResponse", err: fileErr(model.KindValidation, "invalid path")}
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		if os.IsExist(err) {
			return result{respType: "FileCreateDirResponse", err: fileErr(model.KindConflict, "directory already exists")}
		}
		return result{respType: "FileCreateDirResponse", err: fileErr(model.KindResource, "create directory failed")}
	}
	s.fileIndex.MarkDirty()
	return result{respType: "FileCreateDirResponse", payload: proto.FileCreateDirResponse{Success: true}}
}

func (s *Server) handleFileRename(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileRename](payload)
	if err != nil {
		return protocolErr("malformed FileRename")
	}
	if !sess.Permissions().Has(model.PermFileUpload) {
		return result{respType: "FileRenameResponse", err: permDenied()}
	}
	if !fileio.ValidRelPath(req.NewName) || filepath.Base(req.NewName) != req.NewName {
		return result{respType: "FileRenameResponse", err: fileErr(model.KindValidation, "invalid new name")}
	}
	area, err := s.areaFor(sess)
	if err != nil {
		return result{respType: "FileRenameResponse", err: fileErr(model.KindResource, "area resolve failed")}
	}
	abs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		return result{respType: "FileRenameResponse", err: fileErr(model.KindValidation, "invalid path")}
	}
	dest := filepath.Join(filepath.Dir(abs), req.NewName)
	if err := os.Rename(abs, dest); err != nil {
		return result{respType: "FileRenameResponse", err: fileErr(model.KindResource, "rename failed")}
	}
	s.fileIndex.MarkDirty()
	return result{respType: "FileRenameResponse", payload: proto.FileRenameResponse{Success: true}}
}

func (s *Server) handleFileMove(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileMove](payload)
	if err != nil {
		return protocolErr("malformed FileMove")
	}
	return s.relocate(sess, "FileMoveResponse", req.Path, req.Dest, req.Root, req.Overwrite, true)
}

func (s *Server) handleFileCopy(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileCopy](payload)
	if err != nil {
		return protocolErr("malformed FileCopy")
	}
	return s.relocate(sess, "FileCopyResponse", req.Path, req.Dest, req.Root, req.Overwrite, false)
}

func (s *Server) relocate(sess *session.Session, respType, srcRel, destRel string, root, overwrite, move bool) result {
	if !sess.Permissions().Has(model.PermFileUpload) {
		return result{respType: respType, err: permDenied()}
	}
	area, err := s.areaFor(sess)
	if err != nil {
		return result{respType: respType, err: fileErr(model.KindResource, "area resolve failed")}
	}
	src, err := area.ResolvedPath(srcRel, root)
	if err != nil {
		return result{respType: respType, err: fileErr(model.KindValidation, "invalid source path")}
	}
	dest, err := area.ResolvedPath(destRel, root)
	if err != nil {
		return result{respType: respType, err: fileErr(model.KindValidation, "invalid destination path")}
	}
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return result{respType: respType, err: fileErr(model.KindConflict, "destination already exists")}
		}
	}

	if move {
		if err := os.Rename(src, dest); err != nil {
			return result{respType: respType, err: fileErr(model.KindResource, "move failed")}
		}
	} else if err := copyTree(src, dest); err != nil {
		return result{respType: respType, err: fileErr(model.KindResource, "copy failed")}
	}
	s.fileIndex.MarkDirty()
	if respType == "FileMoveResponse" {
		return result{respType: respType, payload: proto.FileMoveResponse{Success: true}}
	}
	return result{respType: respType, payload: proto.FileCopyResponse{Success: true}}
}

func copyTree(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dest, info)
	}
	if err := os.MkdirAll(dest, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = out.ReadFrom(in)
	return err
}

func (s *Server) handleFileDelete(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileDelete](payload)
	if err != nil {
		return protocolErr("malformed FileDelete")
	}
	if !sess.Permissions().Has(model.PermFileDelete) {
		return result{respType: "FileDeleteResponse", err: permDenied()}
	}
	area, err := s.areaFor(sess)
	if err != nil {
		return result{respType: "FileDeleteResponse", err: fileErr(model.KindResource, "area resolve failed")}
	}
	abs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		return result{respType: "FileDeleteResponse", err: fileErr(model.KindValidation, "invalid path")}
	}
	if err := os.RemoveAll(abs); err != nil {
		return result{respType: "FileDeleteResponse", err: fileErr(model.KindResource, "delete failed")}
	}
	s.fileIndex.MarkDirty()
	return result{respType: "FileDeleteResponse", payload: proto.FileDeleteResponse{Success: true}}
}

func (s *Server) handleFileSearch(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.FileSearch](payload)
	if err != nil {
		return protocolErr("malformed FileSearch")
	}
	if !sess.Permissions().Has(model.PermFileList) {
		return result{respType: "FileSearchResponse", err: permDenied()}
	}
	matches, ok := s.fileIndex.Search(req.Query)
	if !ok {
		kind := model.KindValidation
		msg := i18n.T(sess.Locale(), i18n.KeySearchTooShort)
		if len(req.Query) > fileindex.MaxQueryBytes {
			msg = i18n.T(sess.Locale(), i18n.KeySearchTooLong)
		}
		return result{respType: "FileSearchResponse", err: &model.Error{Kind: kind, Message: msg}}
	}

	out := make([]proto.FileEntry, 0, len(matches))
	for _, m := range matches {
		out = append(out, proto.FileEntry{Path: m.Path, Name: m.Name, Size: m.Size, Modified: m.Modified, IsDirectory: m.IsDirectory})
	}
	return result{respType: "FileSearchResponse", payload: proto.FileSearchResponse{Success: true, Results: out}}
}

func (s *Server) handleFileReindex(sess *session.Session, payload []byte) result {
	if !sess.IsAdmin() {
		return result{respType: "FileReindexResponse", err: permDenied()}
	}
	go func() {
		start := time.Now()
		if err := s.fileIndex.Rebuild(); err != nil {
			s.log.WithError(err).Warn("manual reindex failed")
			return
		}
		s.log.WithField("took", time.Since(start)).Info("manual reindex complete")
	}()
	return result{respType: "FileReindexResponse", payload: proto.FileReindexResponse{Success: true}}
}
