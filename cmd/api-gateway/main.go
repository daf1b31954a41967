package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/middleware"
)

// 说明：
// 网关目前只做两件事：自身健康检查 + 带限流的反向代理到 garage-service。
// web 面板与游戏侧 bridge 统一从这里进来，后端地址后续可改为走 Consul 解析。

var (
	listenAddr = flag.String("listen", ":8080", "HTTP listen address")
	backend    = flag.String("backend", "http://localhost:8081", "garage-service base URL")
	rateCap    = flag.Int64("rate-capacity", 200, "token bucket capacity")
	rateRefill = flag.Int64("rate-refill", 100, "tokens refilled per second")
)

func main() {
	flag.Parse()

	target, err := url.Parse(*backend)
	if err != nil {
		panic(fmt.Sprintf("invalid backend url: %v", err))
	}
	proxy := httputil.NewSingleHostReverseProxy(target)

	bucket := middleware.NewTokenBucket(*rateCap, *rateRefill)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !bucket.Allow(r.Context()) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		proxy.ServeHTTP(w, r)
	})

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Printf("api-gateway listening on %s -> %s\n", *listenAddr, target)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		panic(err)
	}
}
