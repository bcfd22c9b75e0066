package model

import (
	"strings"
	"time"
)

// GuestUsername is the canonical username of the special shared guest
// account (§3 Account / §4.3 Login rules).
const GuestUsername = "guest"

// Account is a persisted login identity (§3 Account).
type Account struct {
	Username     string // canonical, case-insensitive unique key, 1-32 ASCII graphic
	PasswordHash string
	IsAdmin      bool
	IsShared     bool
	Enabled      bool
	Permissions  PermissionSet // nil/empty for admins: full access is implicit
	CreatedAt    time.Time
	Locale       string
	AvatarURI    string
}

// CanonicalUsername lowercases u for use as the unique account key. Username
// uniqueness (§3) is case-insensitive but the display form supplied at
// creation is preserved in Username.
func CanonicalUsername(u string) string {
	return strings.ToLower(u)
}

// IsGuest reports whether this account is the guest account.
func (a *Account) IsGuest() bool {
	return CanonicalUsername(a.Username) == GuestUsername
}

// EffectivePermissions returns the permissions the account should be treated
// as holding: admins have implicit full access (§3 "permissions stored for
// non-admins only").
func (a *Account) EffectivePermissions() PermissionSet {
	if a.IsAdmin {
		full := make(PermissionSet)
		for _, p := range []Permission{
			PermChatReceive, PermChatSend, PermChatJoin, PermChatCreate, PermChatTopicEdit,
			PermFileDownload, PermFileInfo, PermFileList, PermFileUpload, PermFileDelete, PermFileRoot,
			PermNewsList, PermNewsCreate, PermNewsEdit, PermNewsDelete,
			PermUserInfo, PermUserList, PermUserMessage, PermUserBroadcast, PermUserEdit, PermUserDelete, PermUserKick,
			PermConnectionMonitor, PermVoiceListen, PermVoiceTalk,
		} {
			full[p] = true
		}
		return full
	}
	return a.Permissions
}

// ValidUsername reports whether u satisfies the §3 Account username rule:
// 1-32 chars, ASCII graphic (printable, no space).
func ValidUsername(u string) bool {
	if len(u) < 1 || len(u) > 32 {
		return false
	}
	for _, r := range u {
		if r < '!' || r > '~' {
			return false
		}
	}
	return true
}
