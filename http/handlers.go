package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"sentimentlab/ml"
)

// ModelInfo 当前服务模型的来源
type ModelInfo struct {
	RunID  string
	URI    string
	Flavor string
}

// Handler 预测页面处理器，模型只读共享
type Handler struct {
	model   ml.TextClassifier
	info    ModelInfo
	cache   *lru.Cache[string, int]
	metrics *Metrics
	logger  *zap.Logger
}

// NewHandler 创建处理器；cacheSize<=0 时不缓存
func NewHandler(model ml.TextClassifier, info ModelInfo, cacheSize int, metrics *Metrics, logger *zap.Logger) (*Handler, error) {
	if model == nil {
		return nil, errors.New("http: model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{model: model, info: info, metrics: metrics, logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, int](cacheSize)
		if err != nil {
			return nil, err
		}
		h.cache = cache
	}
	return h, nil
}

// Routes 已注册路由，用于限定指标的 path 标签
var Routes = map[string]bool{"/": true, "/healthz": true, "/metrics": true}

// RegisterHandlers 注册所有路由
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /{$}", h.handleIndex)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	var text string
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		text = r.PostForm.Get("text")
	}

	view := formView{}
	if text != "" {
		class, err := h.predict(text)
		if err != nil {
			h.logger.Error("prediction failed",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err))
			http.Error(w, "prediction failed", http.StatusInternalServerError)
			return
		}
		view.Prediction = h.model.Label(class)
		view.Positive = strings.EqualFold(view.Prediction, "positive")
		if h.metrics != nil {
			h.metrics.observePrediction(view.Prediction)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, view); err != nil {
		h.logger.Error("render failed", zap.Error(err))
	}
}

func (h *Handler) predict(text string) (int, error) {
	if h.cache != nil {
		class, ok := h.cache.Get(text)
		if h.metrics != nil {
			h.metrics.observeCache(ok)
		}
		if ok {
			return class, nil
		}
	}
	class, err := h.model.PredictOne(text)
	if err != nil {
		return 0, err
	}
	if h.cache != nil {
		h.cache.Add(text, class)
	}
	return class, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"run_id":    h.info.RunID,
		"model_uri": h.info.URI,
		"flavor":    h.info.Flavor,
	})
}
