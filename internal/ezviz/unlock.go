package ezviz

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const (
	pathIoTAction    = "/v3/iot-feature/action/"
	pathRemoteUnlock = "/Video/1/DoorLockMgr/RemoteUnlockReq"
)

type unlockRequest struct {
	UnlockInfo unlockInfo `json:"unLockInfo"`
}

type unlockInfo struct {
	BindCode    string `json:"bindCode"`
	LockNo      int    `json:"lockNo"`
	StreamToken string `json:"streamToken"`
	UserName    string `json:"userName"`
}

type actionResponse struct {
	apiMeta `json:"meta"`
}

// RemoteUnlock opens lock lockNo on the device on behalf of userID.
//
// Returns nil only when the cloud accepted the command. The device itself
// reports the outcome asynchronously through its alarm feed.
func (c *Client) RemoteUnlock(ctx context.Context, serial, userID string, lockNo int) error {
	if serial == "" {
		return errors.New("ezviz: serial is required")
	}
	if lockNo <= 0 {
		return fmt.Errorf("ezviz: invalid lock number %d", lockNo)
	}

	body := unlockRequest{UnlockInfo: unlockInfo{
		BindCode: c.featureCode + userID,
		LockNo:   lockNo,
		UserName: userID,
	}}

	err := c.call(ctx, resty.MethodPut, pathIoTAction+serial+pathRemoteUnlock, func(r *resty.Request) {
		r.SetHeader("Content-Type", jsonContentType).SetBody(body)
	}, &actionResponse{})
	if err != nil {
		return fmt.Errorf("unlock lock %d: %w", lockNo, err)
	}
	return nil
}
