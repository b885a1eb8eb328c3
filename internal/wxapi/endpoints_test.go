package wxapi

import (
	"net/http"
	"strings"
	"testing"
)

func TestEndpointCatalog(t *testing.T) {
	all := []Endpoint{
		EpGetLoginQrCode, EpCheckLogin, EpLogout, EpIsOnline,
		EpSendText, EpSendImage, EpSendFile,
		EpFriendList, EpAcceptFriend, EpSetFriendRemark, EpDeleteFriend,
		EpGroupList, EpGroupMembers, EpInviteToGroup, EpKickFromGroup, EpSetGroupName,
		EpTagList, EpAddTag,
		EpUploadFile, EpDownloadFile,
	}

	seen := map[string]bool{}
	for _, ep := range all {
		if ep.Path == "" {
			t.Fatal("empty endpoint path")
		}
		if strings.HasPrefix(ep.Path, "/") || strings.HasPrefix(ep.Path, "http") {
			t.Fatalf("path %q must be relative", ep.Path)
		}
		if seen[ep.Path] {
			t.Fatalf("duplicate path %q", ep.Path)
		}
		seen[ep.Path] = true
		if ep.Method != "" && ep.Method != http.MethodGet {
			t.Fatalf("path %q: unexpected method %q", ep.Path, ep.Method)
		}
	}

	// 查询类接口必须是 GET。
	for _, ep := range []Endpoint{EpIsOnline, EpFriendList, EpGroupList, EpGroupMembers, EpTagList, EpDownloadFile} {
		if ep.Method != http.MethodGet {
			t.Fatalf("path %q: method = %q, want GET", ep.Path, ep.Method)
		}
	}
}
