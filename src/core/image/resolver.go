package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"tetris-agent-go/src/core/metrics"
	"tetris-agent-go/src/core/utils"

	"github.com/disintegration/imaging"
)

// Resolver 按来源类型获取原始图片字节，不检查像素内容
type Resolver struct {
	maxFileSize int64
	httpClient  *http.Client
	logger      *utils.Logger
}

// NewResolver 创建图片来源解析器，超时由调用方的 context 控制
func NewResolver(maxFileSize int64, logger *utils.Logger) *Resolver {
	httpClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 限制重定向次数为3次
			if len(via) >= 3 {
				return fmt.Errorf("停止重定向：超过最大重定向次数")
			}
			return nil
		},
	}

	return &Resolver{
		maxFileSize: maxFileSize,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// SetHTTPClient 替换下载使用的 HTTP 客户端
func (r *Resolver) SetHTTPClient(client *http.Client) {
	r.httpClient = client
}

// Resolve 获取图片字节；失败时返回 *ValidationError
func (r *Resolver) Resolve(ctx context.Context, src Source) ([]byte, error) {
	metrics.ImageSourcesTotal.WithLabelValues(string(src.Kind())).Inc()

	data, err := src.fetch(ctx, r)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			verr = newValidationError(ReasonReadFailed, "图片处理失败: %v", err)
		}
		metrics.ImageValidationFailuresTotal.WithLabelValues(string(verr.Reason)).Inc()
		r.logger.Warn("图片获取失败", map[string]interface{}{
			"kind":   src.Kind(),
			"reason": verr.Reason,
			"error":  verr.Message,
		})
		return nil, verr
	}

	r.logger.Debug("图片获取完成", map[string]interface{}{
		"kind": src.Kind(),
		"size": len(data),
	})
	return data, nil
}

func (s URLSource) fetch(ctx context.Context, r *Resolver) ([]byte, error) {
	return r.download(ctx, s.URL)
}

func (s FileSource) fetch(ctx context.Context, r *Resolver) ([]byte, error) {
	return r.readFile(s.Path)
}

func (s BytesSource) fetch(ctx context.Context, r *Resolver) ([]byte, error) {
	return s.Data, nil
}

func (s DecodedSource) fetch(ctx context.Context, r *Resolver) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, s.Image, imaging.JPEG); err != nil {
		return nil, newValidationError(ReasonInvalidImageData, "图片编码为JPEG失败: %v", err)
	}
	return buf.Bytes(), nil
}

// download 下载图片，读取量不超过 maxFileSize+1 字节
func (r *Resolver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newValidationError(ReasonFetchFailed, "创建请求失败: %v", err)
	}

	// 设置User-Agent，避免被某些网站拒绝
	req.Header.Set("User-Agent", "Tetris-Vision-Bot/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newValidationError(ReasonFetchFailed, "图片下载超时或已取消: %v", ctx.Err())
		}
		return nil, newValidationError(ReasonFetchFailed, "下载失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		verr := newValidationError(ReasonFetchFailed, "图片下载失败: HTTP %d", resp.StatusCode)
		verr.StatusCode = resp.StatusCode
		return nil, verr
	}

	// 服务端声明的长度已超限，不再读取响应体
	if r.maxFileSize > 0 && resp.ContentLength > r.maxFileSize {
		verr := newValidationError(ReasonTooLarge, "图片太大: %d 字节，最大允许: %d 字节", resp.ContentLength, r.maxFileSize)
		verr.Size = resp.ContentLength
		return nil, verr
	}

	reader := io.Reader(resp.Body)
	if r.maxFileSize > 0 {
		reader = io.LimitReader(resp.Body, r.maxFileSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, newValidationError(ReasonFetchFailed, "读取响应失败: %v", err)
	}

	if r.maxFileSize > 0 && int64(len(data)) > r.maxFileSize {
		verr := newValidationError(ReasonTooLarge, "图片太大: 超过 %d 字节", r.maxFileSize)
		verr.Size = int64(len(data))
		return nil, verr
	}

	r.logger.Info("图片下载完成", map[string]interface{}{
		"url":          url,
		"content_type": resp.Header.Get("Content-Type"),
		"size":         len(data),
	})
	return data, nil
}

// readFile 读取本地图片
func (r *Resolver) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newValidationError(ReasonNotFound, "文件不存在: %s", path)
		}
		return nil, newValidationError(ReasonReadFailed, "文件读取失败: %v", err)
	}
	if info.IsDir() {
		return nil, newValidationError(ReasonReadFailed, "路径是目录: %s", path)
	}
	if r.maxFileSize > 0 && info.Mode().IsRegular() && info.Size() > r.maxFileSize {
		verr := newValidationError(ReasonTooLarge, "图片太大: %d 字节", info.Size())
		verr.Size = info.Size()
		return nil, verr
	}

	// FIFO、设备文件等没有可信的大小，一律限量读取
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newValidationError(ReasonNotFound, "文件不存在: %s", path)
		}
		return nil, newValidationError(ReasonReadFailed, "文件读取失败: %v", err)
	}
	defer f.Close()

	reader := io.Reader(f)
	if r.maxFileSize > 0 {
		reader = io.LimitReader(f, r.maxFileSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, newValidationError(ReasonReadFailed, "文件读取失败: %v", err)
	}
	if r.maxFileSize > 0 && int64(len(data)) > r.maxFileSize {
		verr := newValidationError(ReasonTooLarge, "图片太大: 超过 %d 字节", r.maxFileSize)
		verr.Size = int64(len(data))
		return nil, verr
	}
	return data, nil
}
