package util

const DateFormat = "2006-01-02"

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// gin.Context 中的 key
const (
	UserContextKey  = "user"
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// 作业附件允许的扩展名
var (
	AllowedAttachmentExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".md", ".zip", ".png", ".jpg", ".jpeg"}
)

const MimeVideo = "video/"
