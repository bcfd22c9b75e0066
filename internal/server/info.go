package server

import "github.com/nexusbbs/nexusd/internal/proto"

func (s *Server) publicServerInfo() *proto.ServerInfo {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return &proto.ServerInfo{
		Name:           s.info.Name,
		Description:    s.info.Description,
		Image:          s.info.Image,
		MaxConnections: s.info.MaxConnections,
	}
}

func (s *Server) chatInfoSummary() proto.ChatInfoSummary {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return proto.ChatInfoSummary{
		PersistentChannels: append([]string(nil), s.info.PersistentChannels...),
		AutoJoinChannels:   append([]string(nil), s.info.AutoJoinChannels...),
	}
}
