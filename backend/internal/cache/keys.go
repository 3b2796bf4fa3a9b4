package cache

import "fmt"

// Key semantics:
// - roomKey(docID):            candidate member set (Set<participantId>)
// - memberKey(docID, pid):     member heartbeat key (String "1" with TTL)
// - namesKey(docID):           participantId -> displayName (Hash)
// - rolesKey(docID):           participantId -> role (Hash)
// - cursorKey(docID, pid):     cursor/selection JSON (String with TTL)
const (
	keyRoomFmt   = "presence:room:%s"
	keyMemberFmt = "presence:member:%s:%s"
	keyNamesFmt  = "presence:room:names:%s"
	keyRolesFmt  = "presence:room:roles:%s"
	keyCursorFmt = "presence:cursor:%s:%s"
)

func roomKey(docID string) string { return fmt.Sprintf(keyRoomFmt, docID) }

func memberKey(docID, participantID string) string {
	return fmt.Sprintf(keyMemberFmt, docID, participantID)
}

func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }

func rolesKey(docID string) string { return fmt.Sprintf(keyRolesFmt, docID) }

func cursorKey(docID, participantID string) string {
	return fmt.Sprintf(keyCursorFmt, docID, participantID)
}
