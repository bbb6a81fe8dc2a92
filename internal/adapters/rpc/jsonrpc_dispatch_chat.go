package rpc

import "encoding/json"

func (s *Server) dispatchLifecycleRPC(method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "initChat":
		config, err := decodeInitParams(rawParams, s.engineConfig)
		if err != nil {
			return nil, rpcInvalidParams(), true
		}
		return verdict(s.chat.Initialize(config)), nil, true
	case "startChat":
		result, rpcErr := callWithoutParams(rawParams, s.chat.Start)
		return result, rpcErr, true
	case "stopChat":
		result, rpcErr := callWithoutParams(rawParams, s.chat.Stop)
		return result, rpcErr, true
	case "destroyChat":
		result, rpcErr := callWithoutParams(rawParams, s.chat.Destroy)
		return result, rpcErr, true
	case "setEventCallback":
		result, rpcErr := callWithoutParams(rawParams, s.chat.RegisterPushHandler)
		return result, rpcErr, true
	default:
		return nil, nil, false
	}
}

func (s *Server) dispatchChatRPC(method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "getId":
		result, rpcErr := callWithoutParams(rawParams, s.chat.GetID)
		return result, rpcErr, true
	case "getDefaultInboxId":
		result, rpcErr := callWithoutParams(rawParams, s.chat.GetDefaultInboxID)
		return result, rpcErr, true
	case "listConversations":
		result, rpcErr := callWithoutParams(rawParams, s.chat.ListConversations)
		return result, rpcErr, true
	case "getIdentity":
		result, rpcErr := callWithoutParams(rawParams, s.chat.GetIdentity)
		return result, rpcErr, true
	case "createIntroBundle":
		result, rpcErr := callWithoutParams(rawParams, s.chat.CreateIntroBundle)
		return result, rpcErr, true
	case "getConversation":
		result, rpcErr := callWithStringParams(rawParams, []string{"convoId"}, func(args []string) error {
			return s.chat.GetConversation(args[0])
		})
		return result, rpcErr, true
	case "newPrivateConversation":
		result, rpcErr := callWithStringParams(rawParams, []string{"introBundle", "contentHex"}, func(args []string) error {
			return s.chat.NewPrivateConversation(args[0], args[1])
		})
		return result, rpcErr, true
	case "sendMessage":
		result, rpcErr := callWithStringParams(rawParams, []string{"convoId", "contentHex"}, func(args []string) error {
			return s.chat.SendMessage(args[0], args[1])
		})
		return result, rpcErr, true
	default:
		return nil, nil, false
	}
}
