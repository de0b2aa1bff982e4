package errors

// RAG 服务代码: 20 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 20 (RAG 服务)
// - BB: 类别代码
// - CCC: 序号

var (
	// 请求参数错误 (类别 01)
	ErrRAGInvalidRequest  = Register(New(MakeCode(ServiceRAG, CategoryRequest, 1), 400, "Invalid request parameters", "请求参数无效"))
	ErrRAGInvalidChunking = Register(New(MakeCode(ServiceRAG, CategoryRequest, 2), 400, "Invalid chunking parameters", "分块参数无效"))
	ErrRAGEmptyQuery      = Register(New(MakeCode(ServiceRAG, CategoryRequest, 3), 400, "Query must not be empty", "查询不能为空"))

	// 查询相关错误
	ErrRAGQueryTimeout = Register(New(MakeCode(ServiceRAG, CategoryTimeout, 1), 408, "Query timeout", "查询超时"))
	ErrRAGQueryFailed  = Register(New(MakeCode(ServiceRAG, CategoryInternal, 1), 500, "Query failed", "查询失败"))
	ErrRAGNoResults    = Register(New(MakeCode(ServiceRAG, CategoryResource, 1), 404, "No results found", "未找到结果"))

	// 索引相关错误
	ErrRAGChunkingFailed  = Register(New(MakeCode(ServiceRAG, CategoryInternal, 2), 500, "Document chunking failed", "文档分块失败"))
	ErrRAGIndexFailed     = Register(New(MakeCode(ServiceRAG, CategoryInternal, 3), 500, "Document indexing failed", "文档索引失败"))
	ErrRAGEmbeddingFailed = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 1), 502, "Embedding generation failed", "向量生成失败"))

	// 服务相关错误
	ErrRAGServiceUnavailable = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 2), 503, "RAG service unavailable", "RAG 服务不可用"))
	ErrRAGValidatorNotReady  = Register(New(MakeCode(ServiceRAG, CategoryInternal, 4), 500, "Validation harness not initialized", "验证组件未初始化"))
	ErrRAGStatsUnavailable   = Register(New(MakeCode(ServiceRAG, CategoryInternal, 5), 500, "Statistics unavailable", "统计信息不可用"))
)
