package wxapi

import "net/http"

// Endpoint 描述一个上游接口：相对路径 + 方法。上游的几十个接口都是
// 同一种「路径 + JSON/Query」形状，用描述符表代替逐接口的请求类型。
// Method 为空时按 POST 处理。
type Endpoint struct {
	Path   string
	Method string
}

// 登录与会话
var (
	EpGetLoginQrCode = Endpoint{Path: "open/getLoginQrCode"}
	EpCheckLogin     = Endpoint{Path: "open/checkLogin"}
	EpLogout         = Endpoint{Path: "open/logout"}
	EpIsOnline       = Endpoint{Path: "open/isOnline", Method: http.MethodGet}
)

// 消息发送
var (
	EpSendText  = Endpoint{Path: "open/sendText"}
	EpSendImage = Endpoint{Path: "open/sendImage"}
	EpSendFile  = Endpoint{Path: "open/sendFile"}
)

// 好友
var (
	EpFriendList      = Endpoint{Path: "open/getFriendList", Method: http.MethodGet}
	EpAcceptFriend    = Endpoint{Path: "open/acceptFriend"}
	EpSetFriendRemark = Endpoint{Path: "open/setFriendRemark"}
	EpDeleteFriend    = Endpoint{Path: "open/deleteFriend"}
)

// 群
var (
	EpGroupList     = Endpoint{Path: "open/getGroupList", Method: http.MethodGet}
	EpGroupMembers  = Endpoint{Path: "open/getGroupMembers", Method: http.MethodGet}
	EpInviteToGroup = Endpoint{Path: "open/inviteToGroup"}
	EpKickFromGroup = Endpoint{Path: "open/kickFromGroup"}
	EpSetGroupName  = Endpoint{Path: "open/setGroupName"}
)

// 标签
var (
	EpTagList = Endpoint{Path: "open/getTagList", Method: http.MethodGet}
	EpAddTag  = Endpoint{Path: "open/addTag"}
)

// 文件
var (
	EpUploadFile   = Endpoint{Path: "open/uploadFile"}
	EpDownloadFile = Endpoint{Path: "open/downloadFile", Method: http.MethodGet}
)
