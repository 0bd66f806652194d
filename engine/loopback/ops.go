package loopback

// Op names an engine operation for fault injection.
type Op string

const (
	OpDefaultSettings Op = "default_settings"
	OpNewContext      Op = "new_context"
	OpDestroy         Op = "destroy"
	OpListen          Op = "listen"
	OpJoin            Op = "join"
	OpRun             Op = "run"
	OpSend            Op = "send"
	OpNewIdentity     Op = "new_identity"
	OpUseIdentity     Op = "use_identity"
	OpMxProperties    Op = "mx_properties"
	OpReceive         Op = "add_receive_cb"
	OpAuthenticate    Op = "set_authenticate_cb"
	OpAuthorize       Op = "set_authorize_cb"
	OpAccounting      Op = "set_accounting_cb"
)
