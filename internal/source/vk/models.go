package vk

import (
	"encoding/json"
	"fmt"
)

// envelope is the VK API response wrapper. Exactly one of Response and
// Error is set.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}

// APIError is an error reported in the body of a VK API response.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// WallResponse is the payload of wall.get.
type WallResponse struct {
	Count int        `json:"count"`
	Items []WallItem `json:"items"`
}

type WallItem struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"owner_id"`
	Date     int64  `json:"date"`
	Text     string `json:"text"`
	IsPinned int    `json:"is_pinned"`
}

// Group is one element of the groups.getById payload.
type Group struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
	IsClosed   int    `json:"is_closed"`
	Type       string `json:"type"`
	Photo50    string `json:"photo_50"`
	Photo100   string `json:"photo_100"`
	Photo200   string `json:"photo_200"`
}
