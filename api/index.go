package handler

import (
	"log"
	"net/http"
	"sync"

	config "sales-insight-api/configs"
	"sales-insight-api/pkg/app"

	"github.com/gin-gonic/gin"
)

var (
	engine *gin.Engine
	once   sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() *gin.Engine {
	once.Do(func() {
		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Printf("❌ [setupApp] invalid configuration: %v", err)
			engine = gin.New()
			engine.NoRoute(func(c *gin.Context) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "server is misconfigured"})
			})
			return
		}
		logger := app.NewLogger(cfg)
		engine = app.Build(cfg, logger)
	})
	return engine
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	setupApp().ServeHTTP(w, r)
}
