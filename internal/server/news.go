package server

import (
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

func newsView(n model.NewsItem) proto.NewsItemView {
	return proto.NewsItemView{
		ID: n.ID, Body: n.Body, Image: n.Image, Author: n.Author,
		AuthorIsAdmin: n.AuthorIsAdmin, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
	}
}

func (s *Server) handleNewsList(sess *session.Session, payload []byte) result {
	if !sess.Permissions().Has(model.PermNewsList) {
		return result{respType: "NewsListResponse", err: permDenied()}
	}
	items, err := s.store.ListNews()
	if err != nil {
		return result{respType: "NewsListResponse", err: &model.Error{Kind: model.KindResource, Message: "list news failed"}}
	}
	out := make([]proto.NewsItemView, 0, len(items))
	for _, n := range items {
		out = append(out, newsView(n))
	}
	return result{respType: "NewsListResponse", payload: proto.NewsListResponse{Success: true, Items: out}}
}

func (s *Server) handleNewsShow(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.NewsShow](payload)
	if err != nil {
		return protocolErr("malformed NewsShow")
	}
	if !sess.Permissions().Has(model.PermNewsList) {
		return result{respType: "NewsShowResponse", err: permDenied()}
	}
	n, err := s.store.GetNews(req.ID)
	if err != nil {
		return result{respType: "NewsShowResponse", err: &model.Error{Kind: model.KindNotFound, Message: "news item not found"}}
	}
	view := newsView(n)
	return result{respType: "NewsShowResponse", payload: proto.NewsShowResponse{Success: true, Item: &view}}
}

func (s *Server) handleNewsCreate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.NewsCreate](payload)
	if err != nil {
		return protocolErr("malformed NewsCreate")
	}
	if !sess.Permissions().Has(model.PermNewsCreate) {
		return result{respType: "NewsCreateResponse", err: permDenied()}
	}
	if ve := validateNewsContent(req.Body, req.Image); ve != nil {
		return result{respType: "NewsCreateResponse", err: ve}
	}

	id, err := s.store.CreateNews(model.NewsItem{Body: req.Body, Image: req.Image, Author: sess.Username(), AuthorIsAdmin: sess.IsAdmin()})
	if err != nil {
		return result{respType: "NewsCreateResponse", err: &model.Error{Kind: model.KindResource, Message: "create news failed"}}
	}
	s.broadcastNewsUpdated(proto.NewsActionCreate, id)
	return result{respType: "NewsCreateResponse", payload: proto.NewsCreateResponse{Success: true, ID: id}}
}

func (s *Server) handleNewsEdit(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.NewsEdit](payload)
	if err != nil {
		return protocolErr("malformed NewsEdit")
	}
	existing, err := s.store.GetNews(req.ID)
	if err != nil {
		return result{respType: "NewsEditResponse", err: &model.Error{Kind: model.KindNotFound, Message: "news item not found"}}
	}
	if !existing.CanModify(sess.Username(), sess.IsAdmin()) {
		return result{respType: "NewsEditResponse", err: permDenied()}
	}
	if !sess.Permissions().Has(model.PermNewsEdit) {
		return result{respType: "NewsEditResponse", err: permDenied()}
	}
	if ve := validateNewsContent(req.Body, req.Image); ve != nil {
		return result{respType: "NewsEditResponse", err: ve}
	}

	existing.Body, existing.Image = req.Body, req.Image
	if err := s.store.UpdateNews(existing); err != nil {
		return result{respType: "NewsEditResponse", err: &model.Error{Kind: model.KindResource, Message: "update news failed"}}
	}
	s.broadcastNewsUpdated(proto.NewsActionUpdate, req.ID)
	return result{respType: "NewsEditResponse", payload: proto.NewsEditResponse{Success: true}}
}

func (s *Server) handleNewsDelete(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.NewsDelete](payload)
	if err != nil {
		return protocolErr("malformed NewsDelete")
	}
	existing, err := s.store.GetNews(req.ID)
	if err != nil {
		return result{respType: "NewsDeleteResponse", err: &model.Error{Kind: model.KindNotFound, Message: "news item not found"}}
	}
	if !existing.CanModify(sess.Username(), sess.IsAdmin()) || !sess.Permissions().Has(model.PermNewsDelete) {
		return result{respType: "NewsDeleteResponse", err: permDenied()}
	}
	if err := s.store.DeleteNews(req.ID); err != nil {
		return result{respType: "NewsDeleteResponse", err: &model.Error{Kind: model.KindResource, Message: "delete news failed"}}
	}
	s.broadcastNewsUpdated(proto.NewsActionDelete, req.ID)
	return result{respType: "NewsDeleteResponse", payload: proto.NewsDeleteResponse{Success: true}}
}

func validateNewsContent(body, image string) *model.Error {
	if body == "" && image == "" {
		return &model.Error{Kind: model.KindValidation, Message: "news item requires body or image"}
	}
	if !model.ValidNewsBody(body) {
		return &model.Error{Kind: model.KindValidation, Message: "invalid news body"}
	}
	if !model.ValidDataURIImage(image, model.MaxNewsImageBytes) {
		return &model.Error{Kind: model.KindValidation, Message: "invalid news image"}
	}
	return nil
}

func (s *Server) broadcastNewsUpdated(action string, id int64) {
	payload := marshalPayload(proto.NewsUpdated{Action: action, ID: id})
	fanOutFrame(s.sessions.WithPermission(model.PermNewsList), "NewsUpdated", payload)
}
