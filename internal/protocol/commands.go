package protocol

// command is the canonical name of a protocol command.
type command string

const (
	cmdCheck  command = "check"
	cmdMulti  command = "multi"
	cmdSet    command = "set"
	cmdBulk   command = "bulk"
	cmdList   command = "list"
	cmdInfo   command = "info"
	cmdCreate command = "create"
	cmdDrop   command = "drop"
	cmdClose  command = "close"
	cmdClear  command = "clear"
	cmdFlush  command = "flush"
)

var aliases = map[string]command{
	"c":      cmdCheck,
	"check":  cmdCheck,
	"m":      cmdMulti,
	"multi":  cmdMulti,
	"s":      cmdSet,
	"set":    cmdSet,
	"b":      cmdBulk,
	"bulk":   cmdBulk,
	"list":   cmdList,
	"info":   cmdInfo,
	"create": cmdCreate,
	"drop":   cmdDrop,
	"close":  cmdClose,
	"clear":  cmdClear,
	"flush":  cmdFlush,
}
