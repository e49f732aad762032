package middleware

import "github.com/gin-gonic/gin"

// RequestObserver は受信リクエストの結果を記録する。
type RequestObserver interface {
	ObserveRequest(route string, status int)
}

// RequestMetrics はルートとステータスコードごとにリクエストを数えるGinミドルウェアを返す。
func RequestMetrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if observer != nil {
			observer.ObserveRequest(c.FullPath(), c.Writer.Status())
		}
	}
}
