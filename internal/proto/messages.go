// Package proto defines the JSON payload schema for every frame type in the
// wire protocol (§6 "Message set"). Types are plain structs tagged for
// encoding/json; the dispatcher in internal/server selects a handler by the
// frame's Type string and unmarshals into the matching request struct.
package proto

import "time"

// --- Handshake -------------------------------------------------------------

type Handshake struct {
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

type HandshakeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// --- Session -----------------------------------------------------------------

type Login struct {
	Username string `json:"username" validate:"max=32"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty" validate:"omitempty,max=32"`
	Locale   string `json:"locale,omitempty" validate:"omitempty,max=35"`
}

type ServerInfo struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Image          string `json:"image,omitempty"`
	MaxConnections int    `json:"max_connections,omitempty"`
}

type ChatInfoSummary struct {
	PersistentChannels []string `json:"persistent_channels"`
	AutoJoinChannels   []string `json:"auto_join_channels"`
}

type LoginResponse struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Nickname    string          `json:"nickname,omitempty"`
	IsAdmin     bool            `json:"is_admin,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	Locale      string          `json:"locale,omitempty"`
	ServerInfo  *ServerInfo     `json:"server_info,omitempty"`
	ChatInfo    ChatInfoSummary `json:"chat_info,omitempty"`
	Channels    []ChannelState  `json:"channels,omitempty"`
}

// TransferLoginResponse is the reduced LoginResponse sent on the transfer
// port (§4.5: "returns only {success,error?}").
type TransferLoginResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Ping struct{}
type Pong struct{}

type Error struct {
	Command   string `json:"command,omitempty"`
	Message   string `json:"message"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// --- Users & Presence --------------------------------------------------------

type UserList struct {
	All bool `json:"all"`
}

type UserSummary struct {
	Nickname  string   `json:"nickname"`
	Username  string   `json:"username,omitempty"`
	Away      bool     `json:"away,omitempty"`
	Status    string   `json:"status,omitempty"`
	IsAdmin   bool     `json:"is_admin,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Enabled   bool     `json:"enabled,omitempty"`
}

type UserListResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Users   []UserSummary `json:"users,omitempty"`
}

type UserInfo struct {
	Nickname string `json:"nickname" validate:"required,max=32"`
}

type UserInfoResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	User    *UserSummary `json:"user,omitempty"`
}

type UserConnected struct {
	Nickname string `json:"nickname"`
}

type UserDisconnected struct {
	Nickname string `json:"nickname"`
}

type UserUpdated struct {
	Nickname string `json:"nickname"`
	Away     bool   `json:"away"`
	Status   string `json:"status"`
}

type UserAway struct{}
type UserAwayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type UserBack struct{}
type UserBackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type UserStatus struct {
	Status string `json:"status" validate:"max=128"`
}
type UserStatusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// --- Chat --------------------------------------------------------------------

type ChannelState struct {
	Name    string   `json:"name"`
	Topic   string   `json:"topic,omitempty"`
	Secret  bool     `json:"secret,omitempty"`
	Members []string `json:"members,omitempty"`
}

type ChatJoin struct {
	Channel string `json:"channel" validate:"required,min=2,max=32"`
}

type ChatJoinResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Channel *ChannelState `json:"channel,omitempty"`
}

type ChatLeave struct {
	Channel string `json:"channel" validate:"required,min=2,max=32"`
}

type ChatLeaveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ChatList struct{}
type ChatListResponse struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Channels []ChannelState `json:"channels,omitempty"`
}

type ChatSecret struct {
	Channel string `json:"channel" validate:"required,min=2,max=32"`
	Secret  bool   `json:"secret"`
}
type ChatSecretResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

const (
	ChatActionNormal = "Normal"
	ChatActionMe     = "Me"
)

type ChatSend struct {
	Channel string `json:"channel" validate:"required,min=2,max=32"`
	Message string `json:"message" validate:"max=1024"`
	Action  string `json:"action,omitempty" validate:"omitempty,oneof=Normal Me"`
}

type ChatMessage struct {
	Channel  string `json:"channel"`
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
	Action   string `json:"action,omitempty"`
}

type ChatUserJoined struct {
	Channel  string `json:"channel"`
	Nickname string `json:"nickname"`
}

type ChatUserLeft struct {
	Channel  string `json:"channel"`
	Nickname string `json:"nickname"`
}

type ChatTopicUpdate struct {
	Channel string `json:"channel" validate:"required,min=2,max=32"`
	Topic   string `json:"topic" validate:"max=256"`
}
type ChatTopicUpdateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ChatTopicUpdated struct {
	Channel string `json:"channel"`
	Topic   string `json:"topic"`
	SetBy   string `json:"set_by"`
}

// --- Messaging & Broadcast ----------------------------------------------------

type UserMessage struct {
	Nickname string `json:"nickname" validate:"required,max=32"`
	Message  string `json:"message" validate:"max=1024"`
}

type UserMessageResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Away    bool   `json:"away,omitempty"`
	Status  string `json:"status,omitempty"`
}

type UserBroadcast struct {
	Message string `json:"message" validate:"max=1024"`
}
type UserBroadcastResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ServerBroadcast struct {
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
}

// --- News ----------------------------------------------------------------------

type NewsItemView struct {
	ID            int64     `json:"id"`
	Body          string    `json:"body,omitempty"`
	Image         string    `json:"image,omitempty"`
	Author        string    `json:"author"`
	AuthorIsAdmin bool      `json:"author_is_admin"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type NewsList struct{}
type NewsListResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Items   []NewsItemView `json:"items,omitempty"`
}

type NewsShow struct {
	ID int64 `json:"id" validate:"required"`
}
type NewsShowResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Item    *NewsItemView `json:"item,omitempty"`
}

type NewsCreate struct {
	Body  string `json:"body" validate:"max=4096"`
	Image string `json:"image,omitempty" validate:"omitempty,max=1048576"`
}
type NewsCreateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

type NewsEdit struct {
	ID    int64  `json:"id" validate:"required"`
	Body  string `json:"body" validate:"max=4096"`
	Image string `json:"image,omitempty" validate:"omitempty,max=1048576"`
}
type NewsEditResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewsUpdate is an alias request kept for wire compatibility with clients
// that send "NewsUpdate" instead of "NewsEdit" for the same operation.
type NewsUpdate = NewsEdit
type NewsUpdateResponse = NewsEditResponse

type NewsDelete struct {
	ID int64 `json:"id" validate:"required"`
}
type NewsDeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

const (
	NewsActionCreate = "create"
	NewsActionUpdate = "update"
	NewsActionDelete = "delete"
)

type NewsUpdated struct {
	Action string `json:"action"`
	ID     int64  `json:"id"`
}

// --- Files (metadata) -----------------------------------------------------------

type FileEntry struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	IsDirectory bool      `json:"is_directory"`
}

type FileList struct {
	Path string `json:"path" validate:"max=4096"`
	Root bool   `json:"root,omitempty"`
}
type FileListResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Entries []FileEntry `json:"entries,omitempty"`
}

type FileInfo struct {
	Path string `json:"path" validate:"max=4096"`
	Root bool   `json:"root,omitempty"`
}
type FileInfoResponse struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Entry   *FileEntry `json:"entry,omitempty"`
}

type FileCreateDir struct {
	Path string `json:"path" validate:"required,max=4096"`
	Root bool   `json:"root,omitempty"`
}
type FileCreateDirResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type FileRename struct {
	Path    string `json:"path" validate:"required,max=4096"`
	NewName string `json:"new_name" validate:"required,max=255"`
	Root    bool   `json:"root,omitempty"`
}
type FileRenameResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type FileMove struct {
	Path      string `json:"path" validate:"required,max=4096"`
	Dest      string `json:"dest" validate:"required,max=4096"`
	Overwrite bool   `json:"overwrite,omitempty"`
	Root      bool   `json:"root,omitempty"`
}
type FileMoveResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type FileCopy struct {
	Path      string `json:"path" validate:"required,max=4096"`
	Dest      string `json:"dest" validate:"required,max=4096"`
	Overwrite bool   `json:"overwrite,omitempty"`
	Root      bool   `json:"root,omitempty"`
}
type FileCopyResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type FileDelete struct {
	Path string `json:"path" validate:"required,max=4096"`
	Root bool   `json:"root,omitempty"`
}
type FileDeleteResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type FileSearch struct {
	Query string `json:"query" validate:"required,max=256"`
}
type FileSearchResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Results []FileEntry `json:"results,omitempty"`
}

type FileReindex struct{}
type FileReindexResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// --- Transfers (port 7501) -------------------------------------------------------

type FileDownload struct {
	Path string `json:"path" validate:"required,max=4096"`
	Root bool   `json:"root,omitempty"`
}
type FileDownloadResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Size       int64  `json:"size,omitempty"`
	FileCount  int    `json:"file_count,omitempty"`
	TransferID string `json:"transfer_id,omitempty"`
}

type FileUpload struct {
	Path string `json:"path" validate:"required,max=4096"`
	Root bool   `json:"root,omitempty"`
}
type FileUploadResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	TransferID string `json:"transfer_id,omitempty"`
}

type FileStart struct {
	Path   string `json:"path" validate:"required,max=4096"`
	Size   int64  `json:"size" validate:"min=0"`
	SHA256 string `json:"sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
}

type FileStartResponse struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// FileData carries a binary payload rather than JSON; see frame.TypeFileData.

type FileHashing struct {
	File string `json:"file"`
}

type TransferComplete struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// --- Admin ---------------------------------------------------------------------

type UserCreate struct {
	Username    string   `json:"username" validate:"required,max=32"`
	Password    string   `json:"password" validate:"required"`
	IsAdmin     bool     `json:"is_admin,omitempty"`
	IsShared    bool     `json:"is_shared,omitempty"`
	Enabled     bool     `json:"enabled"`
	Permissions []string `json:"permissions,omitempty"`
}
type UserCreateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type UserEdit struct {
	Username string `json:"username" validate:"required,max=32"`
}
type UserEditResponse struct {
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
	IsAdmin     bool     `json:"is_admin,omitempty"`
	IsShared    bool     `json:"is_shared,omitempty"`
	Enabled     bool     `json:"enabled,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type UserUpdate struct {
	Username    string   `json:"username" validate:"required,max=32"`
	Password    string   `json:"password,omitempty"`
	NewUsername string   `json:"new_username,omitempty" validate:"omitempty,max=32"`
	IsAdmin     *bool    `json:"is_admin,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
type UserUpdateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type UserDelete struct {
	Username string `json:"username" validate:"required,max=32"`
}
type UserDeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ServerInfoUpdate struct {
	Name                string `json:"name" validate:"required,max=64"`
	Description         string `json:"description,omitempty" validate:"omitempty,max=512"`
	Image               string `json:"image,omitempty" validate:"omitempty,max=1048576"`
	MaxConnections       int    `json:"max_connections,omitempty" validate:"min=0"`
	ReindexIntervalMins int    `json:"reindex_interval_minutes,omitempty" validate:"min=0"`
	PersistentChannels  string `json:"persistent_channels,omitempty"`
	AutoJoinChannels    string `json:"auto_join_channels,omitempty"`
}
type ServerInfoUpdateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ServerInfoUpdated struct {
	ServerInfo ServerInfo `json:"server_info"`
}

type PermissionsUpdated struct {
	Permissions []string        `json:"permissions"`
	IsAdmin     bool            `json:"is_admin"`
	ServerInfo  *ServerInfo     `json:"server_info,omitempty"`
	ChatInfo    *ChatInfoSummary `json:"chat_info,omitempty"`
}

type UserKick struct {
	Nickname string `json:"nickname" validate:"required,max=32"`
	Reason   string `json:"reason,omitempty" validate:"omitempty,max=2048"`
}
type UserKickResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// --- Bans / Trusts --------------------------------------------------------------

type BanCreate struct {
	Target   string `json:"target" validate:"required,max=256"`
	Duration string `json:"duration,omitempty" validate:"omitempty,max=32"`
	Reason   string `json:"reason,omitempty" validate:"omitempty,max=2048"`
}
type BanCreateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type BanDelete struct {
	Target string `json:"target" validate:"required,max=256"`
}
type BanDeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ListEntryView struct {
	IPOrCIDR  string     `json:"ip_or_cidr"`
	Nickname  string     `json:"nickname,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type BanList struct{}
type BanListResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Entries []ListEntryView `json:"entries,omitempty"`
}

type TrustCreate struct {
	Target   string `json:"target" validate:"required,max=256"`
	Duration string `json:"duration,omitempty" validate:"omitempty,max=32"`
	Reason   string `json:"reason,omitempty" validate:"omitempty,max=2048"`
}
type TrustCreateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type TrustDelete struct {
	Target string `json:"target" validate:"required,max=256"`
}
type TrustDeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type TrustList struct{}
type TrustListResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Entries []ListEntryView `json:"entries,omitempty"`
}

// --- Monitor -----------------------------------------------------------------

type ConnectionView struct {
	Nickname  string    `json:"nickname"`
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	LoginTime time.Time `json:"login_time"`
	Flags     []string  `json:"flags,omitempty"`
}

type TransferView struct {
	Direction         string    `json:"direction"`
	Path              string    `json:"path"`
	TotalSize         int64     `json:"total_size"`
	BytesTransferred  int64     `json:"bytes_transferred"`
	StartedAt         time.Time `json:"started_at"`
}

type ConnectionMonitor struct{}
type ConnectionMonitorResponse struct {
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	Connections []ConnectionView `json:"connections,omitempty"`
	Transfers   []TransferView   `json:"transfers,omitempty"`
}

// --- Voice -----------------------------------------------------------------------

type VoiceJoin struct {
	Target string `json:"target" validate:"required,max=32"`
}
type VoiceJoinResponse struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	Token        string   `json:"token,omitempty"`
	Target       string   `json:"target,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

type VoiceLeave struct{}
type VoiceLeaveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type VoiceUserJoined struct {
	Target   string `json:"target"`
	Nickname string `json:"nickname"`
}

type VoiceUserLeft struct {
	Target   string `json:"target"`
	Nickname string `json:"nickname"`
}
