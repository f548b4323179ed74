package ringevent

// SMB2 command ids stamped into Event.SMBCommand. Mirrors the foreign
// producer's fixed command table; ids 0-19 per MS-SMB2.
const (
	SMB2Negotiate        = 0
	SMB2SessionSetup     = 1
	SMB2Logoff           = 2
	SMB2TreeConnect      = 3
	SMB2TreeDisconnect   = 4
	SMB2Create           = 5
	SMB2Close            = 6
	SMB2Flush            = 7
	SMB2Read             = 8
	SMB2Write            = 9
	SMB2Lock             = 10
	SMB2IOCTL            = 11
	SMB2Cancel           = 12
	SMB2Echo             = 13
	SMB2QueryDirectory   = 14
	SMB2ChangeNotify     = 15
	SMB2QueryInfo        = 16
	SMB2SetInfo          = 17
	SMB2OplockBreak      = 18
	SMB2ServerToClient   = 19
)

// AllSMBCmds maps every known SMB2 command name to its wire id. Used to
// precompute dense per-command lookup tables (e.g. the latency handler's
// threshold array) that must cover every id regardless of which ones a
// particular anomaly config tracks.
var AllSMBCmds = map[string]uint16{
	"SMB2_NEGOTIATE":          SMB2Negotiate,
	"SMB2_SESSION_SETUP":      SMB2SessionSetup,
	"SMB2_LOGOFF":             SMB2Logoff,
	"SMB2_TREE_CONNECT":       SMB2TreeConnect,
	"SMB2_TREE_DISCONNECT":    SMB2TreeDisconnect,
	"SMB2_CREATE":             SMB2Create,
	"SMB2_CLOSE":              SMB2Close,
	"SMB2_FLUSH":              SMB2Flush,
	"SMB2_READ":               SMB2Read,
	"SMB2_WRITE":              SMB2Write,
	"SMB2_LOCK":               SMB2Lock,
	"SMB2_IOCTL":              SMB2IOCTL,
	"SMB2_CANCEL":             SMB2Cancel,
	"SMB2_ECHO":               SMB2Echo,
	"SMB2_QUERY_DIRECTORY":    SMB2QueryDirectory,
	"SMB2_CHANGE_NOTIFY":      SMB2ChangeNotify,
	"SMB2_QUERY_INFO":         SMB2QueryInfo,
	"SMB2_SET_INFO":           SMB2SetInfo,
	"SMB2_OPLOCK_BREAK":       SMB2OplockBreak,
	"SMB2_SERVER_TO_CLIENT":   SMB2ServerToClient,
}

// MaxSMBCmdID is the highest known command id; dense lookup tables are sized
// MaxSMBCmdID+1 so any id in AllSMBCmds indexes directly.
const MaxSMBCmdID = SMB2ServerToClient
