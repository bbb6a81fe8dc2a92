package rpc

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeRateLimited    = -32029
)

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid params"}
}

func rpcRateLimited() *rpcError {
	return &rpcError{Code: codeRateLimited, Message: "rate limit exceeded"}
}

func rpcServiceError(code int, err error) *rpcError {
	return &rpcError{Code: code, Message: err.Error()}
}

func rpcParseError() *rpcError {
	return &rpcError{Code: codeParseError, Message: "parse error"}
}

func rpcInvalidRequest() *rpcError {
	return &rpcError{Code: codeInvalidRequest, Message: "invalid request"}
}

func rpcMethodNotFound() *rpcError {
	return &rpcError{Code: codeMethodNotFound, Message: "method not found"}
}
