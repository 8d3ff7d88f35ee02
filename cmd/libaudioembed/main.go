// Command libaudioembed builds the C shared library:
//
//	go build -buildmode=c-shared -o libaudioembed.so ./cmd/libaudioembed
//
// Handles are positive int32 values; 0 is never issued. Buffers are owned
// by the caller and sized with the matching length query first.
package main

/*
#include <stdbool.h>
#include <stdint.h>
*/
import "C"

import (
	"unsafe"

	"github.com/chaz8081/audioembed/internal/capi"
)

//export ae_create_context
func ae_create_context() C.int32_t {
	return C.int32_t(capi.CreateContext())
}

//export ae_destroy_context
func ae_destroy_context(handle C.int32_t) C.bool {
	return C.bool(capi.DestroyContext(int32(handle)))
}

//export ae_configure_model
func ae_configure_model(handle C.int32_t, modelPath *C.char) C.bool {
	if modelPath == nil {
		return false
	}
	return C.bool(capi.ConfigureModel(int32(handle), C.GoString(modelPath)))
}

// ae_run_inference returns 0 on success, -1 on failure with error text,
// -2 when unconfigured, -3 for an unknown handle and -4 when busy.
//
//export ae_run_inference
func ae_run_inference(handle C.int32_t, audioPath *C.char, sampleRate, resampleQuality C.int32_t) C.int32_t {
	if audioPath == nil {
		return C.int32_t(capi.StatusFailed)
	}
	return C.int32_t(capi.RunInference(int32(handle), C.GoString(audioPath), int32(sampleRate), int32(resampleQuality)))
}

//export ae_get_error_length
func ae_get_error_length(handle C.int32_t) C.int32_t {
	return C.int32_t(capi.ErrorLength(int32(handle)))
}

//export ae_get_error
func ae_get_error(handle C.int32_t, buf *C.char, size C.int32_t) C.bool {
	if buf == nil || size <= 0 {
		return false
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size))
	return C.bool(capi.CopyError(int32(handle), b))
}

//export ae_get_embedding_count
func ae_get_embedding_count(handle C.int32_t) C.int32_t {
	return C.int32_t(capi.EmbeddingCount(int32(handle)))
}

//export ae_get_embedding_size
func ae_get_embedding_size(handle C.int32_t) C.int32_t {
	return C.int32_t(capi.EmbeddingSize(int32(handle)))
}

//export ae_get_total_embedding_elements
func ae_get_total_embedding_elements(handle C.int32_t) C.int32_t {
	return C.int32_t(capi.TotalEmbeddingElements(int32(handle)))
}

//export ae_get_embeddings
func ae_get_embeddings(handle C.int32_t, out *C.float, size C.int32_t) C.bool {
	if out == nil || size < 0 {
		return false
	}
	return C.bool(capi.CopyEmbeddings(int32(handle), unsafe.Slice((*float32)(unsafe.Pointer(out)), int(size))))
}

//export ae_shutdown
func ae_shutdown() {
	capi.Shutdown()
}

func main() {}
