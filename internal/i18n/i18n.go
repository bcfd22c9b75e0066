// Package i18n renders server-side error and notice strings in a session's
// locale (§4.3 "Translation", §7 "Localization"). Only a fixed catalog of
// keys is ever rendered this way; free-form user content (chat messages,
// news bodies) is never translated.
package i18n

// DefaultLocale is used when a session specifies no locale or an unknown
// one (§4.3 "unknown locales fall back to en").
const DefaultLocale = "en"

// Key identifies a translatable server message.
type Key string

const (
	KeyBannedFromServer    Key = "banned_from_server"
	KeyKickedFromServer    Key = "kicked_from_server"
	KeyNicknameInUse       Key = "nickname_in_use"
	KeyInvalidCredentials  Key = "invalid_credentials"
	KeyAccountDisabled     Key = "account_disabled"
	KeyGuestDisabled       Key = "guest_disabled"
	KeyCannotEditAdmin     Key = "cannot_edit_admin"
	KeyCannotDeleteAdmin   Key = "cannot_delete_admin"
	KeyLastAdminGuard      Key = "last_admin_guard"
	KeySelfKick            Key = "self_kick"
	KeySelfDelete          Key = "self_delete"
	KeySelfDemote          Key = "self_demote"
	KeySelfMessage         Key = "self_message"
	KeyChannelNotFound     Key = "channel_not_found"
	KeyUserNotFound        Key = "user_not_found"
	KeyPermissionDenied    Key = "permission_denied"
	KeySearchTooShort      Key = "search_query_too_short"
	KeySearchTooLong       Key = "search_query_too_long"
	KeyJoinCapExceeded     Key = "join_cap_exceeded"
	KeyPersistentNoLeave   Key = "persistent_channel_no_leave"
	KeyUnsupportedVersion  Key = "unsupported_version"
)

var catalog = map[string]map[Key]string{
	"en": {
		KeyBannedFromServer:   "You have been banned from this server.",
		KeyKickedFromServer:   "You have been disconnected by an administrator.",
		KeyNicknameInUse:      "Nickname is already in use",
		KeyInvalidCredentials: "Invalid username or password",
		KeyAccountDisabled:    "This account is disabled",
		KeyGuestDisabled:      "Guest access is disabled on this server",
		KeyCannotEditAdmin:    "Cannot edit admin users",
		KeyCannotDeleteAdmin:  "Cannot delete admin users",
		KeyLastAdminGuard:     "This operation would leave the server with no enabled admin accounts",
		KeySelfKick:           "You cannot kick yourself",
		KeySelfDelete:         "You cannot delete your own account",
		KeySelfDemote:         "You cannot remove your own admin status",
		KeySelfMessage:        "You cannot send a message to yourself",
		KeyChannelNotFound:    "Channel not found",
		KeyUserNotFound:       "User not found",
		KeyPermissionDenied:   "You do not have permission to perform this action",
		KeySearchTooShort:     "Search query is too short",
		KeySearchTooLong:      "Search query is too long",
		KeyJoinCapExceeded:    "You have joined too many channels",
		KeyPersistentNoLeave:  "Cannot leave a persistent channel",
		KeyUnsupportedVersion: "Unsupported protocol version",
	},
}

// T renders key in locale, falling back to DefaultLocale on an unknown
// locale or key.
func T(locale string, key Key) string {
	table, ok := catalog[locale]
	if !ok {
		table = catalog[DefaultLocale]
	}
	if msg, ok := table[key]; ok {
		return msg
	}
	return catalog[DefaultLocale][key]
}

// NormalizeLocale returns locale if it has a catalog entry, else the
// default.
func NormalizeLocale(locale string) string {
	if _, ok := catalog[locale]; ok {
		return locale
	}
	return DefaultLocale
}
