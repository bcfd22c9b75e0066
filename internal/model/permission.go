package model

// Permission is a fine-grained authorization flag on an account.
type Permission string

const (
	PermChatReceive        Permission = "chat_receive"
	PermChatSend           Permission = "chat_send"
	PermChatJoin           Permission = "chat_join"
	PermChatCreate         Permission = "chat_create"
	PermChatTopicEdit      Permission = "chat_topic_edit"
	PermFileDownload       Permission = "file_download"
	PermFileInfo           Permission = "file_info"
	PermFileList           Permission = "file_list"
	PermFileUpload         Permission = "file_upload"
	PermFileDelete         Permission = "file_delete"
	PermFileRoot           Permission = "file_root"
	PermNewsList           Permission = "news_list"
	PermNewsCreate         Permission = "news_create"
	PermNewsEdit           Permission = "news_edit"
	PermNewsDelete         Permission = "news_delete"
	PermUserInfo           Permission = "user_info"
	PermUserList           Permission = "user_list"
	PermUserMessage        Permission = "user_message"
	PermUserBroadcast      Permission = "user_broadcast"
	PermUserEdit           Permission = "user_edit"
	PermUserDelete         Permission = "user_delete"
	PermUserKick           Permission = "user_kick"
	PermConnectionMonitor  Permission = "connection_monitor"
	PermVoiceListen        Permission = "voice_listen"
	PermVoiceTalk          Permission = "voice_talk"
)

// ShareableSet is the permission subset a shared account (§3 Account) may
// hold. Any permission outside this set is stripped on create/update of a
// shared account (§4.4 "shared-filter").
var ShareableSet = map[Permission]bool{
	PermChatReceive:  true,
	PermChatSend:     true,
	PermChatTopicEdit: true,
	PermFileDownload: true,
	PermFileInfo:     true,
	PermFileList:     true,
	PermNewsList:     true,
	PermUserInfo:     true,
	PermUserList:     true,
	PermUserMessage:  true,
}

// PermissionSet is a set of permissions an account holds.
type PermissionSet map[Permission]bool

// Has reports whether the set contains perm.
func (s PermissionSet) Has(perm Permission) bool {
	return s[perm]
}

// HasAll reports whether the set contains every permission in perms.
func (s PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s[p] {
			return false
		}
	}
	return true
}

// Intersect returns a new set containing only permissions present in both
// s and other. Used to enforce the permission-merge invariant (§8): a
// non-admin creator/updater may only grant permissions it itself holds.
func (s PermissionSet) Intersect(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		if other[p] {
			out[p] = true
		}
	}
	return out
}

// FilterShareable returns a new set with every permission outside
// ShareableSet removed.
func (s PermissionSet) FilterShareable() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		if ShareableSet[p] {
			out[p] = true
		}
	}
	return out
}

// Clone returns a shallow copy of the set.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p, v := range s {
		out[p] = v
	}
	return out
}

// Slice returns the permissions in s as a slice, used when serializing to
// the wire protocol. The order follows map iteration and is not defined.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// PermissionSetFromSlice builds a PermissionSet from a wire-format slice.
func PermissionSetFromSlice(perms []Permission) PermissionSet {
	out := make(PermissionSet, len(perms))
	for _, p := range perms {
		out[p] = true
	}
	return out
}
