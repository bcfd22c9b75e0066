// transfer_server.go implements TransferEngine's port-7501 accept loop and
// the one-connection-per-transfer download/upload protocol (§4.5).
package server

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nexusbbs/nexusd/internal/access"
	"github.com/nexusbbs/nexusd/internal/fileio"
	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
	"github.com/nexusbbs/nexusd/internal/transfer"
)

const (
	transferIdleTimeout     = 30 * time.Second
	transferFrameTimeout    = 60 * time.Second
	transferNoProgressLimit = 60 * time.Second
)

// ServeTransfer runs the transfer-port TLS accept loop on addr (§4.5: "same
// frame and TLS stack as BBS port").
func (s *Server) ServeTransfer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	s.log.WithField("addr", addr).Info("transfer listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.acceptTransfer(conn)
	}
}

func (s *Server) acceptTransfer(raw net.Conn) {
	remoteAddr, ok := raw.RemoteAddr().(*net.TCPAddr)
	if !ok {
		raw.Close()
		return
	}
	ip, ok := netipAddrFromIP(remoteAddr.IP)
	if !ok {
		raw.Close()
		return
	}
	if s.gate.Lookup(ip) == access.Deny {
		raw.Close()
		return
	}

	tlsConn := tls.Server(raw, s.tlsConfig)
	if err := tlsConn.SetDeadline(time.Now().Add(preAuthFirstByteTimeout)); err != nil {
		tlsConn.Close()
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return
	}

	sess := session.New(frame.NewMsgID(), tlsConn, ip.String())
	s.handleTransferConn(sess)
}

// handleTransferConn drives one transfer connection through Handshake,
// Login (reduced TransferLoginResponse), then exactly one FileDownload or
// FileUpload for the lifetime of the connection (§4.5: "one connection =
// one transfer").
func (s *Server) handleTransferConn(sess *session.Session) {
	defer sess.Close()

	reader := frame.NewReader(sess.Conn, frame.MaxFrameSize)

	for sess.State() != session.AuthenticatedTransfer {
		_ = sess.Conn.SetReadDeadline(time.Now().Add(preAuthFrameTimeout))
		f, err := reader.ReadFrame()
		if err != nil {
			return
		}
		sess.TouchFrame()

		var ok bool
		switch sess.State() {
		case session.AwaitHandshake:
			ok = s.handleHandshakeFrame(sess, f)
		case session.AwaitLogin:
			ok = s.handleTransferLoginFrame(sess, f)
		default:
			ok = false
		}
		if !ok {
			return
		}
	}

	_ = sess.Conn.SetReadDeadline(time.Now().Add(transferIdleTimeout))
	f, err := reader.ReadFrame()
	if err != nil {
		return
	}
	sess.TouchFrame()

	switch f.Type {
	case "FileDownload":
		s.runDownload(sess, reader, f)
	case "FileUpload":
		s.runUpload(sess, reader, f)
	default:
		_ = sess.Writer.WriteFrame("Error", f.MsgID, marshalPayload(proto.Error{
			Command: f.Type, Message: "expected FileDownload or FileUpload",
		}))
	}
}

func (s *Server) handleTransferLoginFrame(sess *session.Session, f *frame.Frame) bool {
	if f.Type != "Login" {
		return false
	}
	var req proto.Login
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		s.replyTransferLogin(sess, f.MsgID, false, i18n.T("en", i18n.KeyInvalidCredentials))
		return false
	}
	locale := i18n.NormalizeLocale(req.Locale)

	acc, nickname, isShared, isGuest, loginErr := s.authenticate(req)
	if loginErr != nil {
		s.replyTransferLogin(sess, f.MsgID, false, loginFailureMessage(locale, loginErr))
		return false
	}

	sess.Authenticate(*acc, nickname, isShared, isGuest, locale)
	sess.SetState(session.AuthenticatedTransfer)
	s.replyTransferLogin(sess, f.MsgID, true, "")
	return true
}

func (s *Server) replyTransferLogin(sess *session.Session, msgid string, success bool, errMsg string) {
	_ = sess.Writer.WriteFrame("LoginResponse", msgid, marshalPayload(proto.TransferLoginResponse{Success: success, Error: errMsg}))
}

// downloadFile is one file enumerated under a FileDownload request.
type downloadFile struct {
	rel  string
	abs  string
	size int64
}

func enumerateFiles(abs string) ([]downloadFile, int64, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, 0, err
	}
	if !info.IsDir() {
		return []downloadFile{{rel: filepath.Base(abs), abs: abs, size: info.Size()}}, info.Size(), nil
	}

	var out []downloadFile
	var total int64
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, ferr := d.Info()
		if ferr != nil {
			return ferr
		}
		rel, rerr := filepath.Rel(abs, p)
		if rerr != nil {
			return rerr
		}
		out = append(out, downloadFile{rel: filepath.ToSlash(rel), abs: p, size: fi.Size()})
		total += fi.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Server) runDownload(sess *session.Session, reader *frame.Reader, f *frame.Frame) {
	req, err := unmarshalInto[proto.FileDownload](f.Payload)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileDownloadResponse", protocolErr("malformed FileDownload").err)
		return
	}
	if !sess.Permissions().Has(model.PermFileDownload) {
		s.replyTransferErr(sess, f.MsgID, "FileDownloadResponse", permDenied())
		return
	}
	if req.Root && !sess.Permissions().Has(model.PermFileRoot) {
		s.replyTransferErr(sess, f.MsgID, "FileDownloadResponse", permDenied())
		return
	}

	area, err := s.areaFor(sess)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileDownloadResponse", fileErr(model.KindResource, "area resolve failed"))
		return
	}
	abs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileDownloadResponse", fileErr(model.KindValidation, "invalid path"))
		return
	}

	files, totalSize, err := enumerateFiles(abs)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileDownloadResponse", fileErr(model.KindNotFound, "path not found"))
		return
	}

	t := transfer.New(transfer.Download, req.Path, sess.RemoteIP, totalSize)
	s.transfers.Add(t)
	defer s.transfers.Remove(t.ID)

	_ = sess.Writer.WriteFrame("FileDownloadResponse", f.MsgID, marshalPayload(proto.FileDownloadResponse{
		Success: true, Size: totalSize, FileCount: len(files), TransferID: t.ID,
	}))

	for _, fe := range files {
		if t.Aborted() {
			return // §4.5 "Ban mid-transfer": close without TransferComplete.
		}
		if !s.sendFile(sess, reader, t, fe) {
			return
		}
	}

	_ = sess.Writer.WriteFrame("TransferComplete", frame.NewMsgID(), marshalPayload(proto.TransferComplete{Success: true}))
}

// sendFile drives one file's FileStart/FileStartResponse negotiation and,
// unless the client already holds a matching copy, streams FileData (§4.5
// steps 2-4). Returns false on any I/O or protocol failure, meaning the
// caller must abandon the whole download.
func (s *Server) sendFile(sess *session.Session, reader *frame.Reader, t *transfer.Transfer, fe downloadFile) bool {
	sha, err := transfer.HashFile(fe.abs, func() {
		_ = sess.Writer.WriteFrame("FileHashing", frame.NewMsgID(), marshalPayload(proto.FileHashing{File: fe.rel}))
	})
	if err != nil {
		s.abortTransfer(sess, "hashing failed", "io_error")
		return false
	}

	startMsgID := frame.NewMsgID()
	_ = sess.Writer.WriteFrame("FileStart", startMsgID, marshalPayload(proto.FileStart{Path: fe.rel, Size: fe.size, SHA256: sha}))

	if fe.size == 0 {
		return true // §4.5 "zero-byte file -> FileStart with empty-file hash, no FileData".
	}

	_ = sess.Conn.SetReadDeadline(time.Now().Add(transferFrameTimeout))
	respFrame, err := reader.ReadFrame()
	if err != nil {
		return false
	}
	var resp proto.FileStartResponse
	_ = json.Unmarshal(respFrame.Payload, &resp)

	offset, err := transfer.ResumeOffset(fe.abs, fe.size, resp.Size, resp.SHA256)
	if err != nil {
		s.abortTransfer(sess, "resume check failed", "io_error")
		return false
	}
	if offset >= fe.size {
		return true // client already has the full file with a matching hash.
	}

	return s.streamFileData(sess, t, fe, offset)
}

func (s *Server) streamFileData(sess *session.Session, t *transfer.Transfer, fe downloadFile, offset int64) bool {
	in, err := os.Open(fe.abs)
	if err != nil {
		return false
	}
	defer in.Close()
	if offset > 0 {
		if _, err := in.Seek(offset, io.SeekStart); err != nil {
			return false
		}
	}

	buf := make([]byte, transfer.AbortPollChunk)
	for {
		if t.Aborted() {
			return false
		}
		_ = sess.Conn.SetWriteDeadline(time.Now().Add(transferNoProgressLimit))
		n, rerr := in.Read(buf)
		if n > 0 {
			if werr := sess.Writer.WriteFrame(frame.TypeFileData, frame.NewMsgID(), buf[:n]); werr != nil {
				return false
			}
			t.AddBytes(int64(n))
		}
		if rerr == io.EOF {
			return true
		}
		if rerr != nil {
			return false
		}
	}
}

func (s *Server) runUpload(sess *session.Session, reader *frame.Reader, f *frame.Frame) {
	req, err := unmarshalInto[proto.FileUpload](f.Payload)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileUploadResponse", protocolErr("malformed FileUpload").err)
		return
	}
	if !sess.Permissions().Has(model.PermFileUpload) {
		s.replyTransferErr(sess, f.MsgID, "FileUploadResponse", permDenied())
		return
	}

	area, err := s.areaFor(sess)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileUploadResponse", fileErr(model.KindResource, "area resolve failed"))
		return
	}
	baseAbs, err := area.ResolvedPath(req.Path, req.Root)
	if err != nil {
		s.replyTransferErr(sess, f.MsgID, "FileUploadResponse", fileErr(model.KindValidation, "invalid path"))
		return
	}
	if !area.InheritedUploadCapability(req.Path + "/x") {
		s.replyTransferErr(sess, f.MsgID, "FileUploadResponse", permDenied())
		return
	}

	t := transfer.New(transfer.Upload, req.Path, sess.RemoteIP, 0)
	s.transfers.Add(t)
	defer s.transfers.Remove(t.ID)

	_ = sess.Writer.WriteFrame("FileUploadResponse", f.MsgID, marshalPayload(proto.FileUploadResponse{Success: true, TransferID: t.ID}))

	// The destination is validated once; each subsequent FileStart names a
	// file relative to it, mirroring FileDownload's "for each file" loop but
	// driven by the client until it signals TransferComplete.
	for {
		if t.Aborted() {
			return
		}
		_ = sess.Conn.SetReadDeadline(time.Now().Add(transferFrameTimeout))
		nf, err := reader.ReadFrame()
		if err != nil {
			return
		}
		sess.TouchFrame()

		switch nf.Type {
		case "TransferComplete":
			_ = sess.Writer.WriteFrame("TransferComplete", nf.MsgID, marshalPayload(proto.TransferComplete{Success: true}))
			return
		case "FileStart":
			if !s.receiveFile(sess, reader, t, baseAbs, nf) {
				return
			}
		default:
			_ = sess.Writer.WriteFrame("Error", nf.MsgID, marshalPayload(proto.Error{Command: nf.Type, Message: "expected FileStart or TransferComplete"}))
			return
		}
	}
}

// receiveFile implements upload's dual of sendFile: it reports the
// server's current partial/final state for the named file, then receives
// FileData until the declared size is reached and finalizes via hash
// verification (§4.5 "Upload").
func (s *Server) receiveFile(sess *session.Session, reader *frame.Reader, t *transfer.Transfer, baseAbs string, startFrame *frame.Frame) bool {
	var req proto.FileStart
	if err := json.Unmarshal(startFrame.Payload, &req); err != nil {
		s.abortTransfer(sess, "malformed FileStart", "io_error")
		return false
	}
	if !fileio.ValidRelPath(req.Path) {
		s.abortTransfer(sess, "invalid path", "io_error")
		return false
	}
	finalPath := filepath.Join(baseAbs, filepath.FromSlash(req.Path))
	partPath := transfer.PartPath(finalPath)

	var existingSize int64
	var existingSHA string
	if info, err := os.Stat(partPath); err == nil {
		existingSize = info.Size()
		if h, herr := transfer.HashFile(partPath, nil); herr == nil {
			existingSHA = h
		}
	}

	_ = sess.Writer.WriteFrame("FileStartResponse", startFrame.MsgID, marshalPayload(proto.FileStartResponse{Size: existingSize, SHA256: existingSHA}))

	if req.Size == 0 {
		if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
			s.abortTransfer(sess, "io error", "io_error")
			return false
		}
		if err := os.WriteFile(finalPath, nil, 0o644); err != nil {
			s.abortTransfer(sess, "io error", "io_error")
			return false
		}
		return true
	}

	// The client resumes from exactly the offset just reported, the upload
	// symmetry of the download side's server-computed resume offset.
	resumeFrom := int64(0)
	if existingSize > 0 && existingSize <= req.Size && existingSHA != "" {
		resumeFrom = existingSize
	}

	if err := os.MkdirAll(filepath.Dir(partPath), 0o755); err != nil {
		s.abortTransfer(sess, "io error", "io_error")
		return false
	}
	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		s.abortTransfer(sess, "io error", "io_error")
		return false
	}

	received := resumeFrom
	for received < req.Size {
		if t.Aborted() {
			out.Close()
			return false
		}
		_ = sess.Conn.SetReadDeadline(time.Now().Add(transferNoProgressLimit))
		df, err := reader.ReadFrame()
		if err != nil || df.Type != frame.TypeFileData {
			out.Close()
			return false
		}
		if _, werr := out.Write(df.Payload); werr != nil {
			out.Close()
			s.abortTransfer(sess, "disk full", "disk_full")
			return false
		}
		received += int64(len(df.Payload))
		t.AddBytes(int64(len(df.Payload)))
	}
	out.Close()

	if err := transfer.FinalizeUpload(partPath, finalPath, req.SHA256); err != nil {
		kind := "io_error"
		if errors.Is(err, transfer.ErrHashMismatch) {
			kind = "hash_mismatch"
		}
		s.abortTransfer(sess, err.Error(), kind)
		return false
	}
	s.fileIndex.MarkDirty()
	return true
}

func (s *Server) abortTransfer(sess *session.Session, message, kind string) {
	_ = sess.Writer.WriteFrame("TransferComplete", frame.NewMsgID(), marshalPayload(proto.TransferComplete{
		Success: false, Error: message, ErrorKind: kind,
	}))
}

// replyTransferErr sends err as the named response type, relying on every
// transfer response struct sharing {success,error,error_kind} field names.
func (s *Server) replyTransferErr(sess *session.Session, msgid, respType string, err *model.Error) {
	_ = sess.Writer.WriteFrame(respType, msgid, marshalPayload(struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		ErrorKind string `json:"error_kind,omitempty"`
	}{Success: false, Error: err.Message, ErrorKind: string(err.Kind)}))
}
