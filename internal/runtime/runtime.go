// Package runtime holds the single trusted C99 header the generated
// program is compiled against (spec.md §4.9): the `l0_*` value typedefs,
// checked arithmetic, ARC string operations, the `new`/`drop` allocation
// tracker, the unwrap panic that the backend's generated optional
// wrappers call (the wrappers themselves are emitted by internal/backend),
// I/O and hashing primitives, and the ARC/memory tracing macros.
//
// Grounded on lang/ygen's "emitter writes text, something else owns the
// fixed preamble" split: lang/ygen/codegen.go prepends a constant
// boilerplate header before any emitted instruction; Header plays the
// same role for the C99 backend's `#include "l0_runtime.h"` (see
// internal/backend's Lower).
package runtime

// Header is the full text of l0_runtime.h, the header every C99
// translation unit Lower produces includes. driver.Compile writes it
// next to the generated source (see internal/driver).
const Header = `/* l0_runtime.h -- generated once per driver invocation, never edited by
 * hand. Provides every rt_*/_rt_* symbol the L0 backend emits calls to
 * (spec.md §4.9).
 */
#ifndef L0_RUNTIME_H
#define L0_RUNTIME_H

#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <stdio.h>
#include <stdarg.h>

/* ------------------------------------------------------------------ */
/* Value typedefs                                                      */
/* ------------------------------------------------------------------ */

typedef int32_t  l0_int;
typedef uint8_t  l0_byte;
typedef uint8_t  l0_bool;

/* l0_string is a tagged handle: a refcounted heap allocation, a
 * non-refcounted heap allocation (the sentinel refcount below), or a
 * pointer to static storage (string literals), all sharing one
 * representation so every L0 string value can be retained/released
 * uniformly.
 */
#define L0_STRING_RC_STATIC ((uint32_t)0xFFFFFFFFu)
#define L0_STRING_RC_NOTRACK ((uint32_t)0xFFFFFFFEu)

typedef struct l0_string {
    const char *bytes;
    int32_t     len;
    uint32_t   *rc; /* NULL for static strings */
} l0_string;

static const l0_string l0_empty_string = { "", 0, NULL };

/* L0_STRING_CONST materializes a string literal as a non-refcounted,
 * statically-backed l0_string (spec.md §4.8: "string literals decoded
 * once to raw bytes").
 */
#define L0_STRING_CONST(bytes_, len_) \
    ((l0_string){ (bytes_), (int32_t)(len_), NULL })

/* ------------------------------------------------------------------ */
/* Panics                                                               */
/* ------------------------------------------------------------------ */

static void _rt_panic(const char *what) {
    fprintf(stderr, "l0: runtime panic: %s\n", what);
    abort();
}

/* ------------------------------------------------------------------ */
/* Checked arithmetic (spec.md §4.8, §7)                                */
/* ------------------------------------------------------------------ */

static l0_int _rt_iadd(l0_int a, l0_int b) {
    int64_t r = (int64_t)a + (int64_t)b;
    if (r < INT32_MIN || r > INT32_MAX) _rt_panic("integer overflow in +");
    return (l0_int)r;
}

static l0_int _rt_isub(l0_int a, l0_int b) {
    int64_t r = (int64_t)a - (int64_t)b;
    if (r < INT32_MIN || r > INT32_MAX) _rt_panic("integer overflow in -");
    return (l0_int)r;
}

static l0_int _rt_imul(l0_int a, l0_int b) {
    int64_t r = (int64_t)a * (int64_t)b;
    if (r < INT32_MIN || r > INT32_MAX) _rt_panic("integer overflow in *");
    return (l0_int)r;
}

static l0_int _rt_idiv(l0_int a, l0_int b) {
    if (b == 0) _rt_panic("division by zero");
    if (a == INT32_MIN && b == -1) _rt_panic("integer overflow in /");
    return (l0_int)(a / b);
}

static l0_int _rt_imod(l0_int a, l0_int b) {
    if (b == 0) _rt_panic("modulo by zero");
    if (a == INT32_MIN && b == -1) return 0;
    return (l0_int)(a % b);
}

/* Narrowing casts (spec.md §4.8's "_rt_narrow_<dst>" family). */
static l0_byte _rt_narrow_byte(l0_int v) {
    if (v < 0 || v > 255) _rt_panic("narrowing overflow to byte");
    return (l0_byte)v;
}

static l0_int _rt_narrow_int(int64_t v) {
    if (v < INT32_MIN || v > INT32_MAX) _rt_panic("narrowing overflow to int");
    return (l0_int)v;
}

static l0_bool _rt_narrow_bool(l0_int v) {
    return (l0_bool)(v != 0);
}

/* ------------------------------------------------------------------ */
/* ARC string operations (spec.md §4.9)                                 */
/* ------------------------------------------------------------------ */

#if defined(L0_TRACE_ARC)
#define L0_TRACE_ARC_LINE(op_, kind_, ptr_, before_, after_, action_) \
    fprintf(stderr, "[l0][arc] op=%s kind=%s ptr=%p rc_before=%u rc_after=%u action=%s\n", \
        (op_), (kind_), (void *)(ptr_), (unsigned)(before_), (unsigned)(after_), (action_))
#else
#define L0_TRACE_ARC_LINE(op_, kind_, ptr_, before_, after_, action_) ((void)0)
#endif

static void rt_string_retain(l0_string *s) {
    if (s->rc == NULL) {
        L0_TRACE_ARC_LINE("retain", "static", s->bytes, 0, 0, "noop-static");
        return;
    }
    if (*s->rc == L0_STRING_RC_NOTRACK) {
        L0_TRACE_ARC_LINE("retain", "heap", s->bytes, *s->rc, *s->rc, "noop-notrack");
        return;
    }
    uint32_t before = *s->rc;
    if (before >= L0_STRING_RC_NOTRACK - 1) _rt_panic("string refcount overflow");
    (*s->rc)++;
    L0_TRACE_ARC_LINE("retain", "heap", s->bytes, before, *s->rc, "retain");
}

static void rt_string_release(l0_string *s) {
    if (s->rc == NULL) {
        L0_TRACE_ARC_LINE("release", "static", s->bytes, 0, 0, "noop-static");
        return;
    }
    if (*s->rc == L0_STRING_RC_NOTRACK) {
        L0_TRACE_ARC_LINE("release", "heap", s->bytes, *s->rc, *s->rc, "noop-notrack");
        return;
    }
    if (*s->rc == 0) _rt_panic("double release of string");
    uint32_t before = *s->rc;
    (*s->rc)--;
    if (*s->rc == 0) {
        L0_TRACE_ARC_LINE("release", "heap", s->bytes, before, 0, "free");
        free(s->rc);
        free((void *)s->bytes);
    } else {
        L0_TRACE_ARC_LINE("release", "heap", s->bytes, before, *s->rc, "release");
    }
}

static int rt_string_eq(l0_string a, l0_string b) {
    if (a.len != b.len) return 0;
    return memcmp(a.bytes, b.bytes, (size_t)a.len) == 0;
}

/* ------------------------------------------------------------------ */
/* new / drop allocation tracker (spec.md §4.9)                         */
/* ------------------------------------------------------------------ */

#if defined(L0_TRACE_MEMORY)
#define L0_TRACE_MEM_LINE(op_, ptr_, bytes_, action_) \
    fprintf(stderr, "[l0][mem] op=%s ptr=%p bytes=%zu action=%s\n", \
        (op_), (void *)(ptr_), (size_t)(bytes_), (action_))
#else
#define L0_TRACE_MEM_LINE(op_, ptr_, bytes_, action_) ((void)0)
#endif

struct l0_alloc_node {
    void *ptr;
    struct l0_alloc_node *next;
};

static struct l0_alloc_node *l0_alloc_registry = NULL;

static void *_rt_alloc_obj(size_t size) {
    void *p = calloc(1, size);
    if (p == NULL) _rt_panic("out of memory");
    struct l0_alloc_node *n = (struct l0_alloc_node *)malloc(sizeof(struct l0_alloc_node));
    if (n == NULL) _rt_panic("out of memory");
    n->ptr = p;
    n->next = l0_alloc_registry;
    l0_alloc_registry = n;
    L0_TRACE_MEM_LINE("alloc", p, size, "alloc");
    return p;
}

static void _rt_drop(void *p) {
    if (p == NULL) return;
    struct l0_alloc_node **cur = &l0_alloc_registry;
    while (*cur != NULL) {
        if ((*cur)->ptr == p) {
            struct l0_alloc_node *dead = *cur;
            *cur = dead->next;
            free(dead);
            L0_TRACE_MEM_LINE("drop", p, 0, "drop");
            free(p);
            return;
        }
        cur = &(*cur)->next;
    }
    _rt_panic("drop of unregistered pointer");
}

/* ------------------------------------------------------------------ */
/* Checked narrowing of nullable/pointer values (spec.md §4.8)          */
/* ------------------------------------------------------------------ */

static void *_rt_check_nonnull(void *p) {
    if (p == NULL) _rt_panic("null pointer dereference via checked unwrap");
    return p;
}

static void _rt_panic_unwrap(void) {
    _rt_panic("unwrap of an empty optional");
}

/* ------------------------------------------------------------------ */
/* Process entry support (spec.md §4.8, §6)                             */
/* ------------------------------------------------------------------ */

static int l0_argc;
static char **l0_argv;

static void _rt_init_args(int argc, char **argv) {
    l0_argc = argc;
    l0_argv = argv;
}

/* ------------------------------------------------------------------ */
/* I/O primitives (spec.md §4.9)                                        */
/* ------------------------------------------------------------------ */

static l0_string rt_io_read_file(l0_string path) {
    char *cpath = (char *)malloc((size_t)path.len + 1);
    if (cpath == NULL) _rt_panic("out of memory");
    memcpy(cpath, path.bytes, (size_t)path.len);
    cpath[path.len] = '\0';

    FILE *f = fopen(cpath, "rb");
    free(cpath);
    if (f == NULL) return l0_empty_string;

    fseek(f, 0, SEEK_END);
    long size = ftell(f);
    fseek(f, 0, SEEK_SET);
    if (size < 0) { fclose(f); return l0_empty_string; }

    char *buf = (char *)malloc((size_t)size);
    if (buf == NULL) { fclose(f); _rt_panic("out of memory"); }
    size_t got = fread(buf, 1, (size_t)size, f);
    fclose(f);

    uint32_t *rc = (uint32_t *)malloc(sizeof(uint32_t));
    if (rc == NULL) _rt_panic("out of memory");
    *rc = 1;
    return (l0_string){ buf, (int32_t)got, rc };
}

static l0_bool rt_io_write_file(l0_string path, l0_string contents) {
    char *cpath = (char *)malloc((size_t)path.len + 1);
    if (cpath == NULL) _rt_panic("out of memory");
    memcpy(cpath, path.bytes, (size_t)path.len);
    cpath[path.len] = '\0';

    FILE *f = fopen(cpath, "wb");
    free(cpath);
    if (f == NULL) return (l0_bool)0;
    size_t wrote = fwrite(contents.bytes, 1, (size_t)contents.len, f);
    fclose(f);
    return (l0_bool)(wrote == (size_t)contents.len);
}

static l0_string rt_io_read_line(l0_string prompt) {
    if (prompt.len > 0) fwrite(prompt.bytes, 1, (size_t)prompt.len, stdout);
    size_t cap = 128, len = 0;
    char *buf = (char *)malloc(cap);
    if (buf == NULL) _rt_panic("out of memory");
    int ch;
    while ((ch = fgetc(stdin)) != EOF && ch != '\n') {
        if (len + 1 >= cap) {
            cap *= 2;
            buf = (char *)realloc(buf, cap);
            if (buf == NULL) _rt_panic("out of memory");
        }
        buf[len++] = (char)ch;
    }
    uint32_t *rc = (uint32_t *)malloc(sizeof(uint32_t));
    if (rc == NULL) _rt_panic("out of memory");
    *rc = 1;
    return (l0_string){ buf, (int32_t)len, rc };
}

static void rt_io_print(l0_string s) {
    fwrite(s.bytes, 1, (size_t)s.len, stdout);
}

static void rt_io_flush(void) {
    fflush(stdout);
}

/* ------------------------------------------------------------------ */
/* Hashing: SipHash-1-3, 16-byte key, type-tag prefix (spec.md §4.9)    */
/* ------------------------------------------------------------------ */

static const uint8_t l0_siphash_key[16] = {
    0x4c, 0x30, 0x68, 0x61, 0x73, 0x68, 0x4b, 0x65,
    0x79, 0x30, 0x30, 0x30, 0x30, 0x30, 0x30, 0x31,
};

#define L0_ROTL64(x, b) (((x) << (b)) | ((x) >> (64 - (b))))

static uint64_t l0_siphash13(const uint8_t *key, uint8_t tag, const uint8_t *data, size_t len) {
    uint64_t k0, k1;
    memcpy(&k0, key, 8);
    memcpy(&k1, key + 8, 8);

    uint64_t v0 = 0x736f6d6570736575ULL ^ k0;
    uint64_t v1 = 0x646f72616e646f6dULL ^ k1;
    uint64_t v2 = 0x6c7967656e657261ULL ^ k0;
    uint64_t v3 = 0x7465646279746573ULL ^ k1;

#define L0_SIPROUND() do { \
    v0 += v1; v1 = L0_ROTL64(v1, 13); v1 ^= v0; v0 = L0_ROTL64(v0, 32); \
    v2 += v3; v3 = L0_ROTL64(v3, 16); v3 ^= v2; \
    v0 += v3; v3 = L0_ROTL64(v3, 21); v3 ^= v0; \
    v2 += v1; v1 = L0_ROTL64(v1, 17); v1 ^= v2; v2 = L0_ROTL64(v2, 32); \
} while (0)

    uint64_t b = ((uint64_t)(len + 1)) << 56;
    b |= ((uint64_t)tag) << 48;

    size_t i = 0;
    for (; i + 8 <= len; i += 8) {
        uint64_t m;
        memcpy(&m, data + i, 8);
        v3 ^= m;
        L0_SIPROUND();
        v0 ^= m;
    }
    uint64_t last = 0;
    memcpy(&last, data + i, len - i);
    last |= b & 0xFF00000000000000ULL;

    v3 ^= last;
    L0_SIPROUND();
    v0 ^= last;

    v2 ^= 0xff;
    L0_SIPROUND();
    L0_SIPROUND();
    L0_SIPROUND();

    return v0 ^ v1 ^ v2 ^ v3;

#undef L0_SIPROUND
}

static uint64_t rt_hash_int(l0_int v) {
    return l0_siphash13(l0_siphash_key, 0, (const uint8_t *)&v, sizeof(v));
}

static uint64_t rt_hash_byte(l0_byte v) {
    return l0_siphash13(l0_siphash_key, 1, (const uint8_t *)&v, sizeof(v));
}

static uint64_t rt_hash_bool(l0_bool v) {
    return l0_siphash13(l0_siphash_key, 2, (const uint8_t *)&v, sizeof(v));
}

static uint64_t rt_hash_string(l0_string v) {
    return l0_siphash13(l0_siphash_key, 3, (const uint8_t *)v.bytes, (size_t)v.len);
}

static uint64_t rt_hash_ptr(const void *v) {
    return l0_siphash13(l0_siphash_key, 4, (const uint8_t *)&v, sizeof(v));
}

#endif /* L0_RUNTIME_H */
`
