package protocol

const (
	respDone          = "Done"
	respExists        = "Exists"
	respYes           = "Yes"
	respNo            = "No"
	respStart         = "START"
	respEnd           = "END"
	respNotExist      = "Filter does not exist"
	respNotProxied    = "Filter is not proxied. Close it first."
	respDeleting      = "Delete in progress"
	respInternalError = "Internal Error"

	clientErrPrefix = "Client Error: "

	errCmdNotSupported = "Command not supported"
	errBadArgs         = "Bad arguments"
	errUnexpectedArgs  = "Unexpected arguments"
	errFilterKeyNeeded = "Must provide filter name and key"
	errFilterNeeded    = "Must provide filter name"
	errBadFilterName   = "Bad filter name"
)

func clientError(msg string) []string {
	return []string{clientErrPrefix + msg}
}

func single(resp string) []string {
	return []string{resp}
}
